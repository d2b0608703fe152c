package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable backend behind the in-memory Manager cache.
type Store interface {
	SaveSession(ctx context.Context, session *Session) error
	LoadSession(ctx context.Context, id uuid.UUID) (*Session, error)
	LogToolUsage(ctx context.Context, sessionID uuid.UUID, toolName string, success bool, executionTimeMS float64, errMsg string) error
	GetToolUsageStats(ctx context.Context, sessionID uuid.UUID) (map[string]ToolUsageStat, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
	Close() error
}
