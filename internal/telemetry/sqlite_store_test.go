package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogRoutingEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	event := RoutingEvent{
		EventID:           uuid.New(),
		SessionID:         sessionID,
		Timestamp:         time.Now().UTC(),
		QueryHash:         HashQuery("send an email"),
		Candidates:        []CandidateInfo{{ToolName: "gmail.send_email", BaseScore: 0.9}},
		SelectedTools:     []string{"gmail.send_email"},
		TotalCandidates:   1,
		ContextTokensUsed: 120,
		MaxContextTokens:  4000,
		Strategy:          "baseline",
	}
	if err := s.LogRoutingEvent(ctx, event); err != nil {
		t.Fatalf("log routing event: %v", err)
	}

	events, err := s.GetRoutingEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("get routing events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].QueryHash != event.QueryHash {
		t.Errorf("query hash mismatch: %s vs %s", events[0].QueryHash, event.QueryHash)
	}
	if len(events[0].Candidates) != 1 || events[0].Candidates[0].ToolName != "gmail.send_email" {
		t.Errorf("candidates not round-tripped: %+v", events[0].Candidates)
	}
}

func TestLogToolCallUpdatesStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		success := i != 1
		err := s.LogToolCall(ctx, ToolCallEvent{
			EventID:         uuid.New(),
			Timestamp:       time.Now().UTC(),
			ToolName:        "gmail.send_email",
			Success:         success,
			ExecutionTimeMS: 50,
			WasSelected:     true,
		})
		if err != nil {
			t.Fatalf("log tool call: %v", err)
		}
	}

	stats, err := s.GetToolStats(ctx, "gmail.send_email")
	if err != nil {
		t.Fatalf("get tool stats: %v", err)
	}
	if stats.TotalCalls != 3 || stats.SuccessCount != 2 || stats.FailureCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	// add-1 smoothed: (2+1)/(3+2) = 0.6
	if diff := stats.RollingSuccessRate - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected rolling success rate 0.6, got %f", stats.RollingSuccessRate)
	}
}

func TestGetToolStatsUnknownToolDefaultsToHalf(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.GetToolStats(context.Background(), "never.called")
	if err != nil {
		t.Fatalf("get tool stats: %v", err)
	}
	if stats.RollingSuccessRate != 0.5 {
		t.Errorf("expected default rolling success rate 0.5, got %f", stats.RollingSuccessRate)
	}
}

func TestCleanupRemovesOldEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := RoutingEvent{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC().Add(-200 * time.Hour),
		QueryHash: "old",
	}
	recent := RoutingEvent{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		QueryHash: "recent",
	}
	if err := s.LogRoutingEvent(ctx, old); err != nil {
		t.Fatalf("log old event: %v", err)
	}
	if err := s.LogRoutingEvent(ctx, recent); err != nil {
		t.Fatalf("log recent event: %v", err)
	}

	deleted, err := s.Cleanup(ctx, 168*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted event, got %d", deleted)
	}

	remaining, err := s.GetRoutingEvents(ctx, uuid.Nil, 10)
	if err != nil {
		t.Fatalf("get routing events: %v", err)
	}
	if len(remaining) != 1 || remaining[0].QueryHash != "recent" {
		t.Errorf("expected only recent event to remain, got %+v", remaining)
	}
}

func TestRewardCalculatorClampsAndScales(t *testing.T) {
	calc := NewRewardCalculator(DefaultRewardCalculatorConfig())

	success := calc.Calculate(true, 100, 50, false)
	if success.TotalReward <= 0 {
		t.Errorf("expected positive reward for fast successful call, got %f", success.TotalReward)
	}

	failure := calc.Calculate(false, 0, 0, false)
	if failure.TotalReward != -1.0 {
		t.Errorf("expected -1 reward for failure with no other penalties, got %f", failure.TotalReward)
	}

	slowRetry := calc.Calculate(true, 1_000_000, 100_000, true)
	if slowRetry.TotalReward < -1.0 || slowRetry.TotalReward > 1.0 {
		t.Errorf("reward not clamped: %f", slowRetry.TotalReward)
	}
}
