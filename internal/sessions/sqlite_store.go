package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sessionDoc is the JSON-encoded subset of Session persisted alongside its
// messages, which get their own table for range queries.
type sessionDoc struct {
	ActiveTools []string       `json:"active_tools"`
	ToolUsage   map[string]int `json:"tool_usage"`
	Scratchpad  map[string]any `json:"scratchpad"`
	UserContext map[string]any `json:"user_context"`
}

// SQLiteStore is the durable session backend: one row per session plus a
// messages table and a tool_usage_log table for usage analytics.
type SQLiteStore struct {
	db          *sql.DB
	logger      *slog.Logger
	maxMessages int
}

// NewSQLiteStore opens (and migrates) a session database at path.
// maxMessages bounds the in-memory ring buffer of sessions loaded from disk.
func NewSQLiteStore(path string, maxMessages int, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	s := &SQLiteStore{db: db, logger: logger.With("component", "sessions"), maxMessages: maxMessages}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("session store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			state_json TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			tool_call_id TEXT,
			tool_name TEXT,
			metadata_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

		CREATE TABLE IF NOT EXISTS tool_usage_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			success INTEGER NOT NULL,
			execution_time_ms REAL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_tool_usage_session ON tool_usage_log(session_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("migrate session store: %w", err)
	}
	return nil
}

// SaveSession upserts the session row and replaces its message rows.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *Session) error {
	doc := sessionDoc{
		ActiveTools: session.ActiveTools,
		ToolUsage:   session.ToolUsage,
		Scratchpad:  session.Scratchpad,
		UserContext: session.UserContext,
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session doc: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (session_id, created_at, updated_at, state_json)
		VALUES (?, ?, ?, ?)
	`, session.ID.String(), session.CreatedAt.Format(time.RFC3339Nano),
		session.UpdatedAt.Format(time.RFC3339Nano), string(docJSON))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, session.ID.String()); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for _, msg := range session.Messages {
		metaJSON, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, timestamp, tool_call_id, tool_name, metadata_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ID.String(), session.ID.String(), msg.Role, msg.Content, msg.Timestamp.Format(time.RFC3339Nano),
			nullableString(msg.ToolCallID), nullableString(msg.ToolName), string(metaJSON))
		if err != nil {
			return fmt.Errorf("save message: %w", err)
		}
	}

	return tx.Commit()
}

// LoadSession loads a session and its messages, or returns (nil, nil) if not found.
func (s *SQLiteStore) LoadSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var createdAt, updatedAt, docJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, updated_at, state_json FROM sessions WHERE session_id = ?
	`, id.String()).Scan(&createdAt, &updatedAt, &docJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var doc sessionDoc
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("decode session doc: %w", err)
	}

	session := &Session{
		ID:          id,
		ActiveTools: doc.ActiveTools,
		ToolUsage:   doc.ToolUsage,
		Scratchpad:  doc.Scratchpad,
		UserContext: doc.UserContext,
		maxMessages: s.maxMessages,
	}
	session.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	session.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if session.ToolUsage == nil {
		session.ToolUsage = make(map[string]int)
	}
	if session.Scratchpad == nil {
		session.Scratchpad = make(map[string]any)
	}
	if session.UserContext == nil {
		session.UserContext = make(map[string]any)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, tool_call_id, tool_name, metadata_json
		FROM messages WHERE session_id = ? ORDER BY timestamp
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msgID, ts string
		var toolCallID, toolName, metaJSON sql.NullString
		var msg Message
		if err := rows.Scan(&msgID, &msg.Role, &msg.Content, &ts, &toolCallID, &toolName, &metaJSON); err != nil {
			return nil, err
		}
		msg.ID = uuid.MustParse(msgID)
		msg.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		msg.ToolCallID = toolCallID.String
		msg.ToolName = toolName.String
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.maxMessages > 0 && len(session.Messages) > s.maxMessages {
		session.Messages = session.Messages[len(session.Messages)-s.maxMessages:]
	}

	return session, nil
}

func (s *SQLiteStore) LogToolUsage(ctx context.Context, sessionID uuid.UUID, toolName string, success bool, executionTimeMS float64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_usage_log (session_id, tool_name, timestamp, success, execution_time_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID.String(), toolName, time.Now().UTC().Format(time.RFC3339Nano),
		boolToInt(success), executionTimeMS, nullableString(errMsg))
	if err != nil {
		return fmt.Errorf("log tool usage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetToolUsageStats(ctx context.Context, sessionID uuid.UUID) (map[string]ToolUsageStat, error) {
	query := `
		SELECT tool_name, COUNT(*), COALESCE(SUM(success), 0), AVG(execution_time_ms)
		FROM tool_usage_log
	`
	args := []any{}
	if sessionID != uuid.Nil {
		query += ` WHERE session_id = ? `
		args = append(args, sessionID.String())
	}
	query += ` GROUP BY tool_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get tool usage stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ToolUsageStat)
	for rows.Next() {
		var tool string
		var uses, successes int
		var avgTime sql.NullFloat64
		if err := rows.Scan(&tool, &uses, &successes, &avgTime); err != nil {
			return nil, err
		}
		stat := ToolUsageStat{Uses: uses, AvgTimeMS: avgTime.Float64}
		if uses > 0 {
			stat.SuccessRate = float64(successes) / float64(uses)
		}
		out[tool] = stat
	}
	return out, rows.Err()
}

// Cleanup deletes sessions (and their messages/usage rows) not updated
// within maxAge.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "tool_usage_log", "sessions"} {
		q := fmt.Sprintf(`DELETE FROM %s WHERE session_id IN (%s)`, table, placeholders)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.Info("sessions cleaned up", "count", len(ids))
	return len(ids), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
