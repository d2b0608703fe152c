package bias

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetBiasInitializesToDefault(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	if b := s.GetBias("gmail.send_email"); b != 0.0 {
		t.Errorf("expected initial bias 0.0, got %f", b)
	}
}

func TestUpdateMovesBiasTowardPositiveReward(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := s.Update(ctx, "gmail.send_email", 1.0, nil); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	bias := s.GetBias("gmail.send_email")
	if bias <= 0 {
		t.Errorf("expected positive bias after repeated positive rewards, got %f", bias)
	}
	if bias > DefaultConfig().MaxBias {
		t.Errorf("bias exceeded max clamp: %f", bias)
	}
}

func TestUpdateMovesBiasTowardNegativeReward(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := s.Update(ctx, "flaky.tool", -1.0, nil); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	bias := s.GetBias("flaky.tool")
	if bias >= 0 {
		t.Errorf("expected negative bias after repeated negative rewards, got %f", bias)
	}
}

func TestGetTopBiasedTools(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = s.Update(ctx, "good.tool", 1.0, nil)
		_ = s.Update(ctx, "bad.tool", -1.0, nil)
	}

	top := s.GetTopBiasedTools(1, true)
	if len(top) != 1 || top[0].ToolName != "good.tool" {
		t.Errorf("expected good.tool to rank first, got %+v", top)
	}

	bottom := s.GetTopBiasedTools(1, false)
	if len(bottom) != 1 || bottom[0].ToolName != "bad.tool" {
		t.Errorf("expected bad.tool to rank last, got %+v", bottom)
	}
}

func TestResetToolRestoresInitialBias(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	ctx := context.Background()
	_ = s.Update(ctx, "some.tool", 1.0, nil)

	if err := s.ResetTool(ctx, "some.tool"); err != nil {
		t.Fatalf("reset tool: %v", err)
	}
	if b := s.GetBias("some.tool"); b != 0.0 {
		t.Errorf("expected bias reset to 0.0, got %f", b)
	}
}

func TestAdjustSimilarityAddsBiasAndClamps(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_ = s.Update(ctx, "gmail.send_email", 1.0, nil)
	}

	adjuster := NewAdjuster(s)
	adjusted := adjuster.AdjustSimilarity("gmail.send_email", 0.9, nil)
	if adjusted <= 0.9 {
		t.Errorf("expected bias to raise similarity above base, got %f", adjusted)
	}
	if adjusted > 1.0 {
		t.Errorf("expected similarity clamped to 1.0, got %f", adjusted)
	}
}

func TestStatsReflectsPopulation(t *testing.T) {
	s := newTestStore(t, DefaultConfig())
	ctx := context.Background()
	_ = s.Update(ctx, "a", 1.0, nil)
	_ = s.Update(ctx, "b", -1.0, nil)

	stats := s.Stats()
	if stats.ToolCount != 2 {
		t.Errorf("expected 2 tools tracked, got %d", stats.ToolCount)
	}
	if stats.TotalUpdates != 2 {
		t.Errorf("expected 2 total updates, got %d", stats.TotalUpdates)
	}
}
