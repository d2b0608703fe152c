package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics exercises every Metrics method once. NewMetrics registers its
// collectors against the default Prometheus registry, so a second call in
// this package would panic on duplicate registration; keep this the only
// call in the package and route every assertion through it.
func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordRoutingDecision("hybrid", 0.012, 3)
	if got := testutil.ToFloat64(m.RoutingDecisionCounter.WithLabelValues("hybrid")); got != 1 {
		t.Errorf("expected 1 hybrid routing decision, got %v", got)
	}

	m.RecordToolExecution("send_email", "success", 0.2)
	m.RecordToolExecution("send_email", "error", 0.5)
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("send_email", "success")); got != 1 {
		t.Errorf("expected 1 success execution, got %v", got)
	}
	if got := testutil.ToFloat64(m.ToolExecutionCounter.WithLabelValues("send_email", "error")); got != 1 {
		t.Errorf("expected 1 error execution, got %v", got)
	}

	m.RecordReward("send_email", 0.75)
	if count := testutil.CollectAndCount(m.RewardObserved); count < 1 {
		t.Error("expected reward histogram to record an observation")
	}

	m.RecordError("routing", "timeout")
	if got := testutil.ToFloat64(m.ErrorCounter.WithLabelValues("routing", "timeout")); got != 1 {
		t.Errorf("expected 1 routing timeout error, got %v", got)
	}

	m.SetActiveSessions(4)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 4 {
		t.Errorf("expected 4 active sessions, got %v", got)
	}

	m.SetToolZooSize(12)
	if got := testutil.ToFloat64(m.ToolZooSize); got != 12 {
		t.Errorf("expected toolzoo size 12, got %v", got)
	}

	m.SetDownstreamConnected("gmail", true)
	if got := testutil.ToFloat64(m.DownstreamConnectionStatus.WithLabelValues("gmail")); got != 1 {
		t.Errorf("expected gmail connected, got %v", got)
	}
	m.SetDownstreamConnected("gmail", false)
	if got := testutil.ToFloat64(m.DownstreamConnectionStatus.WithLabelValues("gmail")); got != 0 {
		t.Errorf("expected gmail disconnected, got %v", got)
	}

	m.RecordDatabaseQuery("telemetry", "insert", 0.003)
	if count := testutil.CollectAndCount(m.DatabaseQueryDuration); count < 1 {
		t.Error("expected database query duration to record an observation")
	}

	m.RecordConfigReload(nil)
	m.RecordConfigReload(errors.New("bad config"))
	if got := testutil.ToFloat64(m.ConfigReloadCounter.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful reload, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConfigReloadCounter.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed reload, got %v", got)
	}

	m.RecordMaintenancePrune("telemetry", 5)
	if got := testutil.ToFloat64(m.MaintenanceRowsPruned.WithLabelValues("telemetry")); got != 5 {
		t.Errorf("expected 5 pruned rows, got %v", got)
	}
}
