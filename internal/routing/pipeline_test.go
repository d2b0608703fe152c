package routing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ucpgw/ucpgw/internal/bandit"
	"github.com/ucpgw/ucpgw/internal/bias"
	"github.com/ucpgw/ucpgw/internal/telemetry"
	"github.com/ucpgw/ucpgw/internal/toolzoo"
)

type fakeEmbedder struct{ vocab []string }

func (f *fakeEmbedder) Dimension() int { return len(f.vocab) }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(f.vocab))
	for i, term := range f.vocab {
		if strings.Contains(lower, term) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *telemetry.SQLiteStore) {
	t.Helper()

	vocab := []string{"email", "send", "calendar", "schedule", "pull request", "commit"}
	embedder := &fakeEmbedder{vocab: vocab}
	store, err := toolzoo.NewSQLiteVectorStore(":memory:")
	if err != nil {
		t.Fatalf("vector store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	zoo := toolzoo.New(embedder, store, toolzoo.DefaultConfig(), nil)

	tools := []*toolzoo.Tool{
		{ID: "gmail.send_email", Name: "send_email", DisplayName: "Send Email", Description: "Send an email message", ServerID: "gmail"},
		{ID: "calendar.create_event", Name: "create_event", DisplayName: "Create Event", Description: "Schedule a calendar event", ServerID: "calendar"},
		{ID: "github.create_pr", Name: "create_pr", DisplayName: "Create Pull Request", Description: "Open a pull request with a commit", ServerID: "github"},
	}
	if err := zoo.Register(context.Background(), tools); err != nil {
		t.Fatalf("register: %v", err)
	}

	telStore, err := telemetry.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("telemetry store: %v", err)
	}
	t.Cleanup(func() { telStore.Close() })

	scorer, err := bandit.New(bandit.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("bandit scorer: %v", err)
	}
	t.Cleanup(func() { scorer.Close() })

	biasStore, err := bias.New(bias.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("bias store: %v", err)
	}
	t.Cleanup(func() { biasStore.Close() })
	adjuster := bias.NewAdjuster(biasStore)

	cfg := DefaultConfig()
	cfg.FallbackTools = []string{"gmail.send_email"}
	pipeline := New(cfg, zoo, scorer, adjuster, telStore, nil)
	return pipeline, telStore
}

func TestRouteSelectsRelevantTool(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	decision, err := pipeline.Route(context.Background(), RouteInput{
		SessionID:      uuid.New(),
		CurrentMessage: "Send an email to my boss",
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(decision.SelectedTools) == 0 {
		t.Fatalf("expected at least one selected tool")
	}
	if decision.SelectedTools[0] != "send_email" {
		t.Errorf("expected send_email top pick, got %v", decision.SelectedTools)
	}
}

func TestRouteWithEmptyContextUsesFallback(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	decision, err := pipeline.Route(context.Background(), RouteInput{SessionID: uuid.New()})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(decision.SelectedTools) != 1 || decision.SelectedTools[0] != "gmail.send_email" {
		t.Errorf("expected fallback tool, got %v", decision.SelectedTools)
	}
}

func TestDetectDomainsMatchesKeywords(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	domains := pipeline.DetectDomains("please schedule a meeting for tomorrow")
	found := false
	for _, d := range domains {
		if d == "calendar" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected calendar domain detected, got %v", domains)
	}
}

func TestRecordUsageTracksCooccurrence(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	decision := Decision{SelectedTools: []string{"send_email", "create_event"}}
	pipeline.RecordUsage(decision, []string{"send_email", "create_event"})

	stats := pipeline.Stats()
	if stats.Predictions != 1 {
		t.Errorf("expected 1 prediction recorded, got %d", stats.Predictions)
	}
	if stats.AvgPrecision != 1.0 || stats.AvgRecall != 1.0 {
		t.Errorf("expected perfect precision/recall, got %+v", stats)
	}
	if stats.CooccurrencePairs == 0 {
		t.Errorf("expected cooccurrence pairs tracked")
	}
}

func TestRouteEmitsTelemetry(t *testing.T) {
	pipeline, telStore := newTestPipeline(t)
	sessionID := uuid.New()

	_, err := pipeline.Route(context.Background(), RouteInput{
		SessionID:      sessionID,
		CurrentMessage: "Send an email",
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	events, err := telStore.GetRoutingEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("get routing events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 routing event logged, got %d", len(events))
	}
}

func TestRouteEnforcesContextTokenBudget(t *testing.T) {
	vocab := []string{"email", "send"}
	embedder := &fakeEmbedder{vocab: vocab}
	store, err := toolzoo.NewSQLiteVectorStore(":memory:")
	if err != nil {
		t.Fatalf("vector store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	zoo := toolzoo.New(embedder, store, toolzoo.DefaultConfig(), nil)

	tools := []*toolzoo.Tool{
		{ID: "server_a.tool_a", Name: "tool_a", DisplayName: "Tool A", Description: "Send an email message", ServerID: "server_a", SchemaTokens: 600},
		{ID: "server_b.tool_b", Name: "tool_b", DisplayName: "Tool B", Description: "Send an email message", ServerID: "server_b", SchemaTokens: 600},
	}
	if err := zoo.Register(context.Background(), tools); err != nil {
		t.Fatalf("register: %v", err)
	}

	telStore, err := telemetry.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("telemetry store: %v", err)
	}
	t.Cleanup(func() { telStore.Close() })

	scorer, err := bandit.New(bandit.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("bandit scorer: %v", err)
	}
	t.Cleanup(func() { scorer.Close() })

	biasStore, err := bias.New(bias.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("bias store: %v", err)
	}
	t.Cleanup(func() { biasStore.Close() })
	adjuster := bias.NewAdjuster(biasStore)

	cfg := DefaultConfig()
	cfg.Mode = ModeKeyword
	cfg.MaxPerServer = 2
	cfg.MaxTools = 5
	pipeline := New(cfg, zoo, scorer, adjuster, telStore, nil)

	// Both tools cost 600 schemaTokens and match the query equally; a
	// 1000-token budget can only fit one of them.
	decision, err := pipeline.Route(context.Background(), RouteInput{
		SessionID:        uuid.New(),
		CurrentMessage:   "Send an email",
		MaxContextTokens: 1000,
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(decision.SelectedTools) != 1 {
		t.Fatalf("expected exactly 1 tool selected under the token budget, got %v", decision.SelectedTools)
	}

	schemaTokens := map[string]int{"tool_a": 600, "tool_b": 600}
	var total int
	for _, name := range decision.SelectedTools {
		total += schemaTokens[name]
	}
	if total > 1000 {
		t.Errorf("selected tools exceed the context token budget: %d > 1000", total)
	}
}

func TestUpdateConfigAppliesImmediately(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	if pipeline.config().MaxTools == 1 {
		t.Fatal("test setup expected a non-1 default MaxTools")
	}

	updated := pipeline.config()
	updated.MaxTools = 1
	pipeline.UpdateConfig(updated)

	if got := pipeline.config().MaxTools; got != 1 {
		t.Errorf("expected MaxTools 1 after UpdateConfig, got %d", got)
	}
}
