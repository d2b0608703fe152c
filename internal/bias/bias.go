// Package bias maintains a per-tool scalar bias that adjusts semantic
// similarity scores based on observed reward feedback: adjustedScore =
// baseScore + bias. An optional delta vector per tool gives higher-capacity
// adjustment by nudging the effective embedding rather than just a scalar.
package bias

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Config tunes bias learning rate, decay, and optional delta vectors.
type Config struct {
	InitialBias     float64
	LearningRate    float64
	DecayRate       float64
	MaxBias         float64

	EnableDeltaVectors bool
	EmbeddingDim       int
	DeltaLearningRate  float64
	DeltaL2Reg         float64

	DBPath               string
	PersistEveryNUpdates int
}

// DefaultConfig mirrors the reference store: small learning rate, slow
// decay toward zero, bias clamped to +/-0.5, delta vectors off by default.
func DefaultConfig() Config {
	return Config{
		InitialBias:          0.0,
		LearningRate:         0.05,
		DecayRate:            0.001,
		MaxBias:              0.5,
		EnableDeltaVectors:   false,
		EmbeddingDim:         384,
		DeltaLearningRate:    0.01,
		DeltaL2Reg:           0.01,
		PersistEveryNUpdates: 5,
	}
}

// Store is the per-tool bias cache, backed by SQLite for durability.
type Store struct {
	cfg Config

	mu           sync.Mutex
	biases       map[string]float64
	deltas       map[string][]float64
	updateCounts map[string]int
	updatesSincePersist int

	db     *sql.DB
	logger *slog.Logger
}

// New opens (and loads) a bias store at cfg.DBPath.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.MaxBias == 0 {
		cfg.MaxBias = DefaultConfig().MaxBias
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	if cfg.PersistEveryNUpdates == 0 {
		cfg.PersistEveryNUpdates = DefaultConfig().PersistEveryNUpdates
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
		return nil, fmt.Errorf("open bias store: %w", err)
	}

	s := &Store{
		cfg:          cfg,
		biases:       make(map[string]float64),
		deltas:       make(map[string][]float64),
		updateCounts: make(map[string]int),
		db:           db,
		logger:       logger.With("component", "bias"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_biases (
			tool_name TEXT PRIMARY KEY,
			bias REAL NOT NULL,
			delta_vector_json TEXT,
			update_count INTEGER NOT NULL,
			total_reward REAL NOT NULL,
			last_updated TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create tool_biases table: %w", err)
	}
	return nil
}

func (s *Store) loadAll() error {
	rows, err := s.db.Query(`SELECT tool_name, bias, delta_vector_json, update_count FROM tool_biases`)
	if err != nil {
		return fmt.Errorf("load biases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var toolName string
		var bias float64
		var deltaJSON sql.NullString
		var updateCount int
		if err := rows.Scan(&toolName, &bias, &deltaJSON, &updateCount); err != nil {
			return err
		}
		s.biases[toolName] = bias
		s.updateCounts[toolName] = updateCount
		if deltaJSON.Valid && s.cfg.EnableDeltaVectors {
			var delta []float64
			if err := json.Unmarshal([]byte(deltaJSON.String), &delta); err == nil {
				s.deltas[toolName] = delta
			}
		}
	}
	s.logger.Info("biases loaded", "count", len(s.biases))
	return rows.Err()
}

// GetBias returns a tool's current scalar bias, initializing it on first
// access.
func (s *Store) GetBias(toolName string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.biases[toolName]; !ok {
		s.biases[toolName] = s.cfg.InitialBias
		s.updateCounts[toolName] = 0
	}
	return s.biases[toolName]
}

// GetDelta returns a tool's delta vector, or nil if delta vectors are
// disabled or none has been learned yet.
func (s *Store) GetDelta(toolName string) []float64 {
	if !s.cfg.EnableDeltaVectors {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deltas[toolName]
}

// Update moves a tool's bias toward reward*maxBias, applies decay toward
// zero, and clamps to +/-maxBias. If delta vectors are enabled and a query
// embedding is supplied, also updates the tool's delta vector.
func (s *Store) Update(ctx context.Context, toolName string, reward float64, queryEmbedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.biases[toolName]; !ok {
		s.biases[toolName] = s.cfg.InitialBias
		s.updateCounts[toolName] = 0
	}
	current := s.biases[toolName]

	target := reward * s.cfg.MaxBias
	newBias := current + s.cfg.LearningRate*(target-current)
	newBias *= 1 - s.cfg.DecayRate
	newBias = clampBias(newBias, s.cfg.MaxBias)

	s.biases[toolName] = newBias
	s.updateCounts[toolName]++

	if s.cfg.EnableDeltaVectors && len(queryEmbedding) > 0 {
		s.updateDelta(toolName, reward, queryEmbedding)
	}

	s.updatesSincePersist++
	if s.updatesSincePersist >= s.cfg.PersistEveryNUpdates {
		if err := s.persistTool(ctx, toolName); err != nil {
			return err
		}
		s.updatesSincePersist = 0
	}
	return nil
}

func (s *Store) updateDelta(toolName string, reward float64, queryEmbedding []float32) {
	if len(queryEmbedding) != s.cfg.EmbeddingDim {
		s.logger.Warn("embedding dim mismatch", "expected", s.cfg.EmbeddingDim, "got", len(queryEmbedding))
		return
	}
	delta, ok := s.deltas[toolName]
	if !ok {
		delta = make([]float64, s.cfg.EmbeddingDim)
	}
	updated := make([]float64, s.cfg.EmbeddingDim)
	for i := range updated {
		gradient := reward*float64(queryEmbedding[i]) - s.cfg.DeltaL2Reg*delta[i]
		updated[i] = delta[i] + s.cfg.DeltaLearningRate*gradient
	}
	s.deltas[toolName] = updated
}

func (s *Store) persistTool(ctx context.Context, toolName string) error {
	bias := s.biases[toolName]
	updateCount := s.updateCounts[toolName]

	var deltaJSON sql.NullString
	if delta, ok := s.deltas[toolName]; ok {
		b, err := json.Marshal(delta)
		if err != nil {
			return err
		}
		deltaJSON = sql.NullString{String: string(b), Valid: true}
	}

	totalReward := bias * float64(updateCount) // rough estimate, matches the bias-derived approximation

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tool_biases (tool_name, bias, delta_vector_json, update_count, total_reward, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, toolName, bias, deltaJSON, updateCount, totalReward, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("persist bias for %s: %w", toolName, err)
	}
	return nil
}

// PersistAll flushes every in-memory bias to the database.
func (s *Store) PersistAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for toolName := range s.biases {
		if err := s.persistTool(ctx, toolName); err != nil {
			return err
		}
	}
	return nil
}

// GetAllBiases returns a snapshot of every known tool's bias.
func (s *Store) GetAllBiases() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.biases))
	for k, v := range s.biases {
		out[k] = v
	}
	return out
}

// BiasRank pairs a tool with its bias for GetTopBiasedTools.
type BiasRank struct {
	ToolName string
	Bias     float64
}

// GetTopBiasedTools returns the n tools with the highest (or, if positive is
// false, lowest) biases.
func (s *Store) GetTopBiasedTools(n int, positive bool) []BiasRank {
	s.mu.Lock()
	ranked := make([]BiasRank, 0, len(s.biases))
	for name, bias := range s.biases {
		ranked = append(ranked, BiasRank{ToolName: name, Bias: bias})
	}
	s.mu.Unlock()

	sort.Slice(ranked, func(i, j int) bool {
		if positive {
			return ranked[i].Bias > ranked[j].Bias
		}
		return ranked[i].Bias < ranked[j].Bias
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Stats summarizes learned bias distribution.
type Stats struct {
	ToolCount    int     `json:"tool_count"`
	MeanBias     float64 `json:"mean_bias"`
	StdBias      float64 `json:"std_bias"`
	MaxBias      float64 `json:"max_bias"`
	MinBias      float64 `json:"min_bias"`
	TotalUpdates int     `json:"total_updates"`
	HasDeltas    bool    `json:"has_deltas"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.biases) == 0 {
		return Stats{}
	}

	values := make([]float64, 0, len(s.biases))
	maxB, minB := math.Inf(-1), math.Inf(1)
	for _, b := range s.biases {
		values = append(values, b)
		if b > maxB {
			maxB = b
		}
		if b < minB {
			minB = b
		}
	}
	mean := meanOf(values)

	totalUpdates := 0
	for _, c := range s.updateCounts {
		totalUpdates += c
	}

	return Stats{
		ToolCount:    len(s.biases),
		MeanBias:     mean,
		StdBias:      stdOf(values, mean),
		MaxBias:      maxB,
		MinBias:      minB,
		TotalUpdates: totalUpdates,
		HasDeltas:    len(s.deltas) > 0,
	}
}

// ResetTool restores one tool's bias (and delta) to the initial state.
func (s *Store) ResetTool(ctx context.Context, toolName string) error {
	s.mu.Lock()
	s.biases[toolName] = s.cfg.InitialBias
	s.updateCounts[toolName] = 0
	delete(s.deltas, toolName)
	s.mu.Unlock()
	return s.persistTool(ctx, toolName)
}

// ResetAll clears every bias and delta, in memory and on disk.
func (s *Store) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	s.biases = make(map[string]float64)
	s.deltas = make(map[string][]float64)
	s.updateCounts = make(map[string]int)
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM tool_biases`)
	if err != nil {
		return fmt.Errorf("reset bias store: %w", err)
	}
	s.logger.Info("bias store reset")
	return nil
}

// Close flushes every pending bias and releases the database handle.
func (s *Store) Close() error {
	_ = s.PersistAll(context.Background())
	return s.db.Close()
}

func clampBias(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
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
