package cron

import (
	"context"
	"time"

	"github.com/ucpgw/ucpgw/internal/config"
)

// JobType identifies the handler for a cron job. The scheduler only runs
// maintenance jobs; the type remains so new kinds can be added the way the
// gateway's own job types get added elsewhere.
type JobType string

const (
	JobTypeMaintenance JobType = "maintenance"
)

// Schedule represents a parsed schedule: a cron expression, a fixed
// interval, or a one-off timestamp.
type Schedule struct {
	Kind     string
	CronExpr string
	Every    time.Duration
	At       time.Time
	Timezone string
}

// Job represents a scheduled maintenance job.
type Job struct {
	ID       string
	Name     string
	Type     JobType
	Enabled  bool
	Schedule Schedule

	Target string
	MaxAge time.Duration
	Retry  config.CronRetryConfig

	NextRun    time.Time
	LastRun    time.Time
	LastError  string
	RetryCount int
}

// MaintenanceRunner prunes stale records for a named target, e.g. "telemetry"
// or "sessions". It returns the number of rows removed.
type MaintenanceRunner interface {
	Cleanup(ctx context.Context, target string, maxAge time.Duration) (int, error)
}

// MaintenanceRunnerFunc adapts a function to a MaintenanceRunner.
type MaintenanceRunnerFunc func(ctx context.Context, target string, maxAge time.Duration) (int, error)

// Cleanup calls the wrapped function.
func (f MaintenanceRunnerFunc) Cleanup(ctx context.Context, target string, maxAge time.Duration) (int, error) {
	return f(ctx, target, maxAge)
}
