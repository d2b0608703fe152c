// Package bandit implements the shared contextual bandit that scores
// routing candidates. All tools share one feature-weight vector rather than
// a per-tool model, avoiding the storage blowup of a per-tool matrix while
// still letting the score react to per-candidate features.
package bandit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ExplorationType selects how Score injects exploration.
type ExplorationType string

const (
	ExplorationEpsilon  ExplorationType = "epsilon"
	ExplorationThompson ExplorationType = "thompson"
)

// Config tunes the scorer's model, exploration, and persistence behavior.
type Config struct {
	FeatureDim         int
	LearningRate       float64
	L2Regularization   float64
	ExplorationType     ExplorationType
	Epsilon             float64
	ThompsonScale       float64
	PersistEveryNUpdates int
	DBPath              string
}

// DefaultConfig mirrors the reference scorer's defaults: 7 features,
// epsilon-greedy exploration at 10%, persisted every 10 updates.
func DefaultConfig() Config {
	return Config{
		FeatureDim:           7,
		LearningRate:         0.01,
		L2Regularization:     0.001,
		ExplorationType:      ExplorationEpsilon,
		Epsilon:              0.1,
		ThompsonScale:        0.1,
		PersistEveryNUpdates: 10,
		DBPath:               "",
	}
}

// Scorer is the shared logistic-linear bandit model: one weight vector plus
// bias shared across every tool, updated online via SGD.
type Scorer struct {
	cfg Config

	mu          sync.Mutex
	weights     []float64
	bias        float64
	featureSumSq []float64
	updateCount int

	db                  *sql.DB
	updatesSincePersist int
	logger              *slog.Logger
	rng                 *rand.Rand
}

// New builds a Scorer, optionally persisting weights to a SQLite file at
// cfg.DBPath (in-memory if empty).
func New(cfg Config, logger *slog.Logger) (*Scorer, error) {
	if cfg.FeatureDim == 0 {
		cfg.FeatureDim = DefaultConfig().FeatureDim
	}
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.DBPath
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open bandit weight store: %w", err)
	}

	s := &Scorer{
		cfg:          cfg,
		weights:      make([]float64, cfg.FeatureDim),
		featureSumSq: onesVector(cfg.FeatureDim),
		db:           db,
		logger:       logger.With("component", "bandit"),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadWeights(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func onesVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func (s *Scorer) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bandit_weights (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			weights_json TEXT NOT NULL,
			bias REAL NOT NULL,
			feature_sum_sq_json TEXT NOT NULL,
			update_count INTEGER NOT NULL,
			last_updated TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create bandit_weights table: %w", err)
	}
	return nil
}

func (s *Scorer) loadWeights() error {
	var weightsJSON, sumSqJSON, lastUpdated string
	var bias float64
	var updateCount int
	err := s.db.QueryRow(`SELECT weights_json, bias, feature_sum_sq_json, update_count, last_updated FROM bandit_weights WHERE id = 1`).
		Scan(&weightsJSON, &bias, &sumSqJSON, &updateCount, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bandit weights: %w", err)
	}
	if err := json.Unmarshal([]byte(weightsJSON), &s.weights); err != nil {
		return fmt.Errorf("decode bandit weights: %w", err)
	}
	if err := json.Unmarshal([]byte(sumSqJSON), &s.featureSumSq); err != nil {
		return fmt.Errorf("decode bandit feature sums: %w", err)
	}
	s.bias = bias
	s.updateCount = updateCount
	s.logger.Info("bandit weights loaded", "update_count", updateCount)
	return nil
}

func (s *Scorer) saveWeights(ctx context.Context) error {
	weightsJSON, err := json.Marshal(s.weights)
	if err != nil {
		return err
	}
	sumSqJSON, err := json.Marshal(s.featureSumSq)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bandit_weights (id, weights_json, bias, feature_sum_sq_json, update_count, last_updated)
		VALUES (1, ?, ?, ?, ?, ?)
	`, string(weightsJSON), s.bias, string(sumSqJSON), s.updateCount, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("persist bandit weights: %w", err)
	}
	s.updatesSincePersist = 0
	return nil
}

func (s *Scorer) fitFeatures(features []float64) []float64 {
	if len(features) == s.cfg.FeatureDim {
		return features
	}
	out := make([]float64, s.cfg.FeatureDim)
	copy(out, features)
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Score returns the model's predicted reward probability for a feature
// vector, in approximately [0, 1].
func (s *Scorer) Score(features []float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	features = s.fitFeatures(features)
	raw := dot(s.weights, features) + s.bias
	return sigmoid(raw)
}

// ScoreWithExploration scores with the configured exploration strategy
// applied, returning whether exploration fired.
func (s *Scorer) ScoreWithExploration(features []float64) (score float64, explored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	features = s.fitFeatures(features)

	switch s.cfg.ExplorationType {
	case ExplorationThompson:
		sampledWeights := make([]float64, len(s.weights))
		for i, w := range s.weights {
			uncertainty := s.cfg.ThompsonScale * math.Sqrt(1.0/(s.featureSumSq[i]+1e-8))
			sampledWeights[i] = w + s.rng.NormFloat64()*uncertainty
		}
		raw := dot(sampledWeights, features) + s.bias
		return sigmoid(raw), true
	default: // epsilon-greedy
		base := sigmoid(dot(s.weights, features) + s.bias)
		if s.rng.Float64() < s.cfg.Epsilon {
			bonus := (s.rng.Float64()*2 - 1) * 0.3
			return base + bonus, true
		}
		return base, false
	}
}

// Update applies a single online SGD step with L2 regularization toward the
// observed reward (scaled from [-1, 1] to a [0, 1] logistic target), then
// persists every PersistEveryNUpdates calls.
func (s *Scorer) Update(ctx context.Context, features []float64, reward float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	features = s.fitFeatures(features)

	raw := dot(s.weights, features) + s.bias
	predicted := sigmoid(raw)
	target := (reward + 1) / 2
	errTerm := predicted - target

	for i := range s.weights {
		gradient := errTerm*features[i] + s.cfg.L2Regularization*s.weights[i]
		s.weights[i] -= s.cfg.LearningRate * gradient
		s.featureSumSq[i] += features[i] * features[i]
	}
	s.bias -= s.cfg.LearningRate * errTerm
	s.updateCount++
	s.updatesSincePersist++

	if s.updatesSincePersist >= s.cfg.PersistEveryNUpdates {
		if err := s.saveWeights(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the current model state for diagnostics.
type Stats struct {
	UpdateCount     int     `json:"update_count"`
	WeightMean      float64 `json:"weight_mean"`
	WeightStd       float64 `json:"weight_std"`
	Bias            float64 `json:"bias"`
	FeatureDim      int     `json:"feature_dim"`
	ExplorationType string  `json:"exploration_type"`
}

func (s *Scorer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	mean := meanOf(s.weights)
	return Stats{
		UpdateCount:     s.updateCount,
		WeightMean:      mean,
		WeightStd:       stdOf(s.weights, mean),
		Bias:            s.bias,
		FeatureDim:      s.cfg.FeatureDim,
		ExplorationType: string(s.cfg.ExplorationType),
	}
}

// Reset restores the model to its zero-initialized state and persists it.
func (s *Scorer) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights = make([]float64, s.cfg.FeatureDim)
	s.bias = 0
	s.featureSumSq = onesVector(s.cfg.FeatureDim)
	s.updateCount = 0
	return s.saveWeights(ctx)
}

// Close flushes pending weights and releases the underlying database.
func (s *Scorer) Close() error {
	s.mu.Lock()
	_ = s.saveWeights(context.Background())
	s.mu.Unlock()
	return s.db.Close()
}

func dot(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stdOf(v []float64, mean float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range v {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(v)))
}
