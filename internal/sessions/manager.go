package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config configures the session manager.
type Config struct {
	// MaxMessages bounds each session's in-memory message ring buffer.
	MaxMessages int
	// TTL is how long a session may go unused before Cleanup removes it.
	TTL time.Duration
}

// DefaultConfig returns sensible session defaults: a 50-message ring
// buffer and a 24h TTL.
func DefaultConfig() Config {
	return Config{MaxMessages: 50, TTL: 24 * time.Hour}
}

// Manager is the "Operating System" layer over sessions: an in-memory
// cache (RAM) backed by a durable Store (disk).
type Manager struct {
	cfg    Config
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]*Session
}

// NewManager creates a session manager. store may be nil, in which case
// sessions live only in memory for the process lifetime.
func NewManager(cfg Config, store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "sessions"),
		cache:  make(map[uuid.UUID]*Session),
	}
}

// Create starts a new session and persists it.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	session := NewSession(m.cfg.MaxMessages)

	m.mu.Lock()
	m.cache[session.ID] = session
	m.mu.Unlock()

	if err := m.persist(ctx, session); err != nil {
		return nil, err
	}
	m.logger.Info("session created", "session_id", session.ID)
	return session, nil
}

// Count returns the number of sessions currently held in the in-memory
// cache, used for the active sessions gauge.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// Get returns an existing session from cache or the durable store, or nil
// if it doesn't exist.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	session, cached := m.cache[id]
	m.mu.RUnlock()
	if cached {
		return session, nil
	}

	if m.store == nil {
		return nil, nil
	}
	session, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	session.maxMessages = m.cfg.MaxMessages

	m.mu.Lock()
	m.cache[id] = session
	m.mu.Unlock()
	return session, nil
}

// GetOrCreate returns the session for id if it exists, otherwise creates a
// new one. A nil/zero id always creates a new session.
func (m *Manager) GetOrCreate(ctx context.Context, id uuid.UUID) (*Session, error) {
	if id != uuid.Nil {
		existing, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return m.Create(ctx)
}

// Save updates the session's timestamp, refreshes the cache, and persists
// it to the durable store.
func (m *Manager) Save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()

	m.mu.Lock()
	m.cache[session.ID] = session
	m.mu.Unlock()

	return m.persist(ctx, session)
}

func (m *Manager) persist(ctx context.Context, session *Session) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RecordToolUse marks toolName as used on the session and persists it.
func (m *Manager) RecordToolUse(ctx context.Context, session *Session, toolName string) error {
	session.RecordToolUse(toolName)
	return m.Save(ctx, session)
}

// ArchiveMessages trims a session's message history to its keepRecent most
// recent entries, replacing the archived span with a one-line system-message
// summary, and persists the result. Returns the summary, or "" if there was
// nothing to archive.
func (m *Manager) ArchiveMessages(ctx context.Context, session *Session, keepRecent int) (string, error) {
	summary, archivedCount := session.Archive(keepRecent)
	if archivedCount == 0 {
		return "", nil
	}

	if err := m.Save(ctx, session); err != nil {
		return "", err
	}

	m.logger.Info("messages archived", "session_id", session.ID, "archived_count", archivedCount)
	return summary, nil
}

// LogToolUsage records a tool-call outcome for analytics.
func (m *Manager) LogToolUsage(ctx context.Context, sessionID uuid.UUID, toolName string, success bool, executionTimeMS float64, errMsg string) error {
	if m.store == nil {
		return nil
	}
	return m.store.LogToolUsage(ctx, sessionID, toolName, success, executionTimeMS, errMsg)
}

// GetToolUsageStats returns usage stats for one session, or across all
// sessions if sessionID is uuid.Nil.
func (m *Manager) GetToolUsageStats(ctx context.Context, sessionID uuid.UUID) (map[string]ToolUsageStat, error) {
	if m.store == nil {
		return map[string]ToolUsageStat{}, nil
	}
	return m.store.GetToolUsageStats(ctx, sessionID)
}

// Cleanup evicts cached and durable sessions untouched for longer than the
// configured TTL (or maxAge if positive).
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = m.cfg.TTL
	}

	var removed int
	var err error
	if m.store != nil {
		removed, err = m.store.Cleanup(ctx, maxAge)
		if err != nil {
			return 0, err
		}
	}

	cutoff := time.Now().UTC().Add(-maxAge)
	m.mu.Lock()
	for id, session := range m.cache {
		if session.UpdatedAt.Before(cutoff) {
			delete(m.cache, id)
		}
	}
	m.mu.Unlock()

	return removed, nil
}

// Close releases the durable store, if any.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
