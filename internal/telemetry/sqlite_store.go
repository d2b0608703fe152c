package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default telemetry backend: a single SQLite file with
// four tables (routing_events, tool_call_events, reward_signals,
// tool_stats_cache), the last kept current on every LogToolCall.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and migrates) a telemetry database at path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	s := &SQLiteStore{db: db, logger: logger.With("component", "telemetry")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("telemetry store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT,
			timestamp TEXT NOT NULL,
			query_hash TEXT NOT NULL,
			query_text TEXT,
			candidates_json TEXT NOT NULL,
			selected_tools_json TEXT NOT NULL,
			total_candidates INTEGER NOT NULL,
			context_tokens_used INTEGER NOT NULL,
			max_context_tokens INTEGER NOT NULL,
			selection_time_ms REAL NOT NULL,
			strategy TEXT NOT NULL,
			exploration_triggered INTEGER NOT NULL,
			trace_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_routing_session ON routing_events(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_routing_timestamp ON routing_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_routing_trace ON routing_events(trace_id);

		CREATE TABLE IF NOT EXISTS tool_call_events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT,
			routing_event_id TEXT,
			timestamp TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			success INTEGER NOT NULL,
			error_class TEXT,
			execution_time_ms REAL NOT NULL,
			was_selected INTEGER NOT NULL,
			selection_rank INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_call_session ON tool_call_events(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_tool_call_tool ON tool_call_events(tool_name, timestamp);

		CREATE TABLE IF NOT EXISTS reward_signals (
			event_id TEXT PRIMARY KEY,
			tool_call_event_id TEXT,
			tool_name TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			success_reward REAL NOT NULL,
			latency_penalty REAL NOT NULL,
			context_cost_penalty REAL NOT NULL,
			followup_penalty REAL NOT NULL,
			total_reward REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reward_tool ON reward_signals(tool_name, timestamp);

		CREATE TABLE IF NOT EXISTS tool_stats_cache (
			tool_name TEXT PRIMARY KEY,
			total_calls INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			avg_latency_ms REAL NOT NULL DEFAULT 0,
			avg_reward REAL NOT NULL DEFAULT 0,
			rolling_success_rate REAL NOT NULL DEFAULT 0.5,
			last_updated TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate telemetry store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LogRoutingEvent(ctx context.Context, event RoutingEvent) error {
	candidatesJSON, err := json.Marshal(event.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	selectedJSON, err := json.Marshal(event.SelectedTools)
	if err != nil {
		return fmt.Errorf("marshal selected tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO routing_events
		(event_id, session_id, timestamp, query_hash, query_text, candidates_json,
		 selected_tools_json, total_candidates, context_tokens_used, max_context_tokens,
		 selection_time_ms, strategy, exploration_triggered, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.EventID.String(), nullableUUID(event.SessionID), event.Timestamp.Format(time.RFC3339Nano),
		event.QueryHash, nullableString(event.QueryText), string(candidatesJSON), string(selectedJSON),
		event.TotalCandidates, event.ContextTokensUsed, event.MaxContextTokens,
		event.SelectionTimeMS, event.Strategy, boolToInt(event.ExplorationTriggered),
		nullableString(event.TraceID),
	)
	if err != nil {
		return fmt.Errorf("log routing event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LogToolCall(ctx context.Context, event ToolCallEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tool_call_events
		(event_id, session_id, routing_event_id, timestamp, tool_name, success,
		 error_class, execution_time_ms, was_selected, selection_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.EventID.String(), nullableUUID(event.SessionID), nullableUUID(event.RoutingEventID),
		event.Timestamp.Format(time.RFC3339Nano), event.ToolName, boolToInt(event.Success),
		nullableString(event.ErrorClass), event.ExecutionTimeMS, boolToInt(event.WasSelected), event.SelectionRank,
	)
	if err != nil {
		return fmt.Errorf("log tool call: %w", err)
	}
	return s.updateToolStats(ctx, event.ToolName)
}

func (s *SQLiteStore) LogReward(ctx context.Context, reward RewardSignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reward_signals
		(event_id, tool_call_event_id, tool_name, timestamp, success_reward,
		 latency_penalty, context_cost_penalty, followup_penalty, total_reward)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		reward.EventID.String(), nullableUUID(reward.ToolCallEventID), reward.ToolName,
		reward.Timestamp.Format(time.RFC3339Nano), reward.SuccessReward, reward.LatencyPenalty,
		reward.ContextCostPenalty, reward.FollowupPenalty, reward.TotalReward,
	)
	if err != nil {
		return fmt.Errorf("log reward: %w", err)
	}
	return nil
}

// updateToolStats recomputes the materialized stats row for one tool,
// applying add-1 (Laplace) smoothing to the rolling success rate so a
// brand-new tool starts at 0.5 rather than an undefined ratio.
func (s *SQLiteStore) updateToolStats(ctx context.Context, toolName string) error {
	var total, successes, failures int
	var avgLatency sql.NullFloat64
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success), 0),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		       AVG(execution_time_ms)
		FROM tool_call_events WHERE tool_name = ?
	`, toolName)
	if err := row.Scan(&total, &successes, &failures, &avgLatency); err != nil {
		return fmt.Errorf("aggregate tool call stats: %w", err)
	}

	var avgReward sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(total_reward) FROM reward_signals WHERE tool_name = ?`, toolName).Scan(&avgReward); err != nil {
		return fmt.Errorf("aggregate reward stats: %w", err)
	}

	rollingRate := float64(successes+1) / float64(total+2)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tool_stats_cache
		(tool_name, total_calls, success_count, failure_count, avg_latency_ms,
		 avg_reward, rolling_success_rate, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, toolName, total, successes, failures, avgLatency.Float64, avgReward.Float64, rollingRate,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("update tool stats cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetToolStats(ctx context.Context, toolName string) (ToolStats, error) {
	var stats ToolStats
	var lastUpdated string
	err := s.db.QueryRowContext(ctx, `
		SELECT tool_name, total_calls, success_count, failure_count, avg_latency_ms,
		       avg_reward, rolling_success_rate, last_updated
		FROM tool_stats_cache WHERE tool_name = ?
	`, toolName).Scan(&stats.ToolName, &stats.TotalCalls, &stats.SuccessCount, &stats.FailureCount,
		&stats.AvgLatencyMS, &stats.AvgReward, &stats.RollingSuccessRate, &lastUpdated)
	if err == sql.ErrNoRows {
		return ToolStats{ToolName: toolName, RollingSuccessRate: 0.5}, nil
	}
	if err != nil {
		return ToolStats{}, fmt.Errorf("get tool stats: %w", err)
	}
	stats.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	return stats, nil
}

func (s *SQLiteStore) GetAllToolStats(ctx context.Context) (map[string]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, total_calls, success_count, failure_count, avg_latency_ms,
		       avg_reward, rolling_success_rate, last_updated
		FROM tool_stats_cache
	`)
	if err != nil {
		return nil, fmt.Errorf("get all tool stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ToolStats)
	for rows.Next() {
		var stats ToolStats
		var lastUpdated string
		if err := rows.Scan(&stats.ToolName, &stats.TotalCalls, &stats.SuccessCount, &stats.FailureCount,
			&stats.AvgLatencyMS, &stats.AvgReward, &stats.RollingSuccessRate, &lastUpdated); err != nil {
			return nil, err
		}
		stats.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
		out[stats.ToolName] = stats
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRoutingEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]RoutingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if sessionID != uuid.Nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT event_id, session_id, timestamp, query_hash, query_text, candidates_json,
			       selected_tools_json, total_candidates, context_tokens_used, max_context_tokens,
			       selection_time_ms, strategy, exploration_triggered, trace_id
			FROM routing_events WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?
		`, sessionID.String(), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT event_id, session_id, timestamp, query_hash, query_text, candidates_json,
			       selected_tools_json, total_candidates, context_tokens_used, max_context_tokens,
			       selection_time_ms, strategy, exploration_triggered, trace_id
			FROM routing_events ORDER BY timestamp DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get routing events: %w", err)
	}
	defer rows.Close()

	var out []RoutingEvent
	for rows.Next() {
		var e RoutingEvent
		var eventID, sessID, ts, candJSON, selJSON string
		var queryText, traceID sql.NullString
		var exploring int
		if err := rows.Scan(&eventID, &sessID, &ts, &e.QueryHash, &queryText, &candJSON, &selJSON,
			&e.TotalCandidates, &e.ContextTokensUsed, &e.MaxContextTokens, &e.SelectionTimeMS,
			&e.Strategy, &exploring, &traceID); err != nil {
			return nil, err
		}
		e.EventID = uuid.MustParse(eventID)
		if sessID != "" {
			e.SessionID = uuid.MustParse(sessID)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.QueryText = queryText.String
		e.ExplorationTriggered = exploring != 0
		e.TraceID = traceID.String
		if err := json.Unmarshal([]byte(candJSON), &e.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
		if err := json.Unmarshal([]byte(selJSON), &e.SelectedTools); err != nil {
			return nil, fmt.Errorf("decode selected tools: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRecentRewards(ctx context.Context, toolName string, limit int) ([]RewardSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if toolName != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT event_id, tool_call_event_id, tool_name, timestamp, success_reward,
			       latency_penalty, context_cost_penalty, followup_penalty, total_reward
			FROM reward_signals WHERE tool_name = ? ORDER BY timestamp DESC LIMIT ?
		`, toolName, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT event_id, tool_call_event_id, tool_name, timestamp, success_reward,
			       latency_penalty, context_cost_penalty, followup_penalty, total_reward
			FROM reward_signals ORDER BY timestamp DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get recent rewards: %w", err)
	}
	defer rows.Close()

	var out []RewardSignal
	for rows.Next() {
		var r RewardSignal
		var eventID, callEventID, ts string
		if err := rows.Scan(&eventID, &callEventID, &r.ToolName, &ts, &r.SuccessReward,
			&r.LatencyPenalty, &r.ContextCostPenalty, &r.FollowupPenalty, &r.TotalReward); err != nil {
			return nil, err
		}
		r.EventID = uuid.MustParse(eventID)
		if callEventID != "" {
			r.ToolCallEventID = uuid.MustParse(callEventID)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routing_events WHERE timestamp < ?`, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stale routing events: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, table := range []string{"reward_signals", "tool_call_events", "routing_events"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, table), cutoff); err != nil {
			return 0, fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.Info("telemetry cleanup", "deleted", count)
	return count, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullableUUID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
