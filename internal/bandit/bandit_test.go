package bandit

import (
	"context"
	"testing"
)

func newTestScorer(t *testing.T, cfg Config) *Scorer {
	t.Helper()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScoreIsBoundedSigmoid(t *testing.T) {
	s := newTestScorer(t, DefaultConfig())
	features := []float64{1, 1, 1, 1, 1, 1, 1}
	score := s.Score(features)
	if score <= 0 || score >= 1 {
		t.Errorf("expected score strictly in (0,1), got %f", score)
	}
}

func TestUpdateMovesPredictionTowardReward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningRate = 0.5
	s := newTestScorer(t, cfg)
	ctx := context.Background()

	features := []float64{1, 1, 1, 1, 1, 1, 1}
	before := s.Score(features)

	for i := 0; i < 50; i++ {
		if err := s.Update(ctx, features, 1.0); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	after := s.Score(features)

	if after <= before {
		t.Errorf("expected score to increase after positive-reward updates: before=%f after=%f", before, after)
	}
}

func TestFeatureDimMismatchIsPadded(t *testing.T) {
	s := newTestScorer(t, DefaultConfig())
	short := []float64{0.5, 0.5}
	score := s.Score(short)
	if score <= 0 || score >= 1 {
		t.Errorf("expected a valid score despite short feature vector, got %f", score)
	}
}

func TestEpsilonGreedyExplorationCanTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 1.0 // force exploration every call
	s := newTestScorer(t, cfg)

	_, explored := s.ScoreWithExploration([]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	if !explored {
		t.Errorf("expected exploration to trigger with epsilon=1.0")
	}
}

func TestThompsonSamplingAlwaysExplores(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplorationType = ExplorationThompson
	s := newTestScorer(t, cfg)

	_, explored := s.ScoreWithExploration([]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	if !explored {
		t.Errorf("expected thompson sampling to always report exploration")
	}
}

func TestResetZeroesWeights(t *testing.T) {
	s := newTestScorer(t, DefaultConfig())
	ctx := context.Background()
	if err := s.Update(ctx, []float64{1, 1, 1, 1, 1, 1, 1}, 1.0); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stats := s.Stats()
	if stats.UpdateCount != 0 || stats.WeightMean != 0 {
		t.Errorf("expected reset model, got %+v", stats)
	}
}

func TestFeatureExtractorClampsAndInverts(t *testing.T) {
	fx := NewFeatureExtractor(DefaultFeatureExtractorConfig())
	features := fx.Extract(CandidateSignals{
		SemanticScore: 1.5, // clamps to 1
		LatencyMS:     5000,
		SchemaTokens:  2000, // over cap, clamps to 0
	})
	if features[0] != 1.0 {
		t.Errorf("expected semantic score clamped to 1, got %f", features[0])
	}
	if features[5] != 0.0 {
		t.Errorf("expected latency score of 0 at the cap, got %f", features[5])
	}
	if features[6] != 0.0 {
		t.Errorf("expected schema size score clamped to 0, got %f", features[6])
	}
}
