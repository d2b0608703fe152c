package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the telemetry backend contract: append-only event logging plus
// a materialized per-tool stats cache.
type Store interface {
	LogRoutingEvent(ctx context.Context, event RoutingEvent) error
	LogToolCall(ctx context.Context, event ToolCallEvent) error
	LogReward(ctx context.Context, reward RewardSignal) error

	GetToolStats(ctx context.Context, toolName string) (ToolStats, error)
	GetAllToolStats(ctx context.Context) (map[string]ToolStats, error)
	GetRoutingEvents(ctx context.Context, sessionID uuid.UUID, limit int) ([]RoutingEvent, error)
	GetRecentRewards(ctx context.Context, toolName string, limit int) ([]RewardSignal, error)

	// Cleanup deletes events older than maxAge and returns the count of
	// routing events removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)

	Close() error
}
