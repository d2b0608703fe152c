package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Routing decisions made by the pipeline, by mode and domain
//   - Tool execution latencies and outcomes
//   - Bandit/bias reward signals
//   - Active session counts
//   - Connection pool health per downstream server
//   - Database (SQLite/Postgres store) query performance
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.RecordRoutingDecision("hybrid", time.Since(start).Seconds(), 3)
type Metrics struct {
	// RoutingDecisionCounter counts routing decisions by mode.
	// Labels: mode (semantic|keyword|hybrid)
	RoutingDecisionCounter *prometheus.CounterVec

	// RoutingDecisionDuration measures routing latency in seconds.
	// Labels: mode
	RoutingDecisionDuration *prometheus.HistogramVec

	// ToolsSelected tracks how many tools a routing decision returned.
	// Labels: mode
	ToolsSelected *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// RewardObserved tracks the reward signal fed back into the bandit scorer.
	// Labels: tool_name
	RewardObserved *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (gateway|pool|toolzoo|routing|sessions), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	ActiveSessions prometheus.Gauge

	// ToolZooSize tracks the number of tools currently registered.
	ToolZooSize prometheus.Gauge

	// DownstreamConnectionStatus is 1 when a downstream MCP server is
	// connected, 0 otherwise.
	// Labels: server_id
	DownstreamConnectionStatus *prometheus.GaugeVec

	// DatabaseQueryDuration measures store query latency.
	// Labels: store (telemetry|sessions|toolzoo), operation
	DatabaseQueryDuration *prometheus.HistogramVec

	// ConfigReloadCounter counts config hot-reload applications.
	// Labels: status (success|error)
	ConfigReloadCounter *prometheus.CounterVec

	// MaintenanceRowsPruned counts rows removed by scheduled cleanup jobs.
	// Labels: target (telemetry|sessions)
	MaintenanceRowsPruned *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics against the
// default registry. Call once at gateway startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RoutingDecisionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ucpgw_routing_decisions_total",
				Help: "Total number of routing decisions by mode",
			},
			[]string{"mode"},
		),

		RoutingDecisionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ucpgw_routing_decision_duration_seconds",
				Help:    "Duration of routing decisions in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"mode"},
		),

		ToolsSelected: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ucpgw_tools_selected",
				Help:    "Number of tools returned by a routing decision",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"mode"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ucpgw_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ucpgw_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		RewardObserved: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ucpgw_reward_observed",
				Help:    "Reward signal fed back into the bandit scorer",
				Buckets: []float64{-1, -0.5, 0, 0.25, 0.5, 0.75, 1},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ucpgw_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ucpgw_active_sessions",
				Help: "Current number of active sessions",
			},
		),

		ToolZooSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ucpgw_toolzoo_size",
				Help: "Current number of tools registered in the tool zoo",
			},
		),

		DownstreamConnectionStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ucpgw_downstream_connection_status",
				Help: "1 if the downstream MCP server is connected, 0 otherwise",
			},
			[]string{"server_id"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ucpgw_database_query_duration_seconds",
				Help:    "Duration of store queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"store", "operation"},
		),

		ConfigReloadCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ucpgw_config_reloads_total",
				Help: "Total number of config hot-reload applications by status",
			},
			[]string{"status"},
		),

		MaintenanceRowsPruned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ucpgw_maintenance_rows_pruned_total",
				Help: "Total number of rows pruned by scheduled maintenance jobs",
			},
			[]string{"target"},
		),
	}
}

// RecordRoutingDecision records metrics for a completed routing decision.
func (m *Metrics) RecordRoutingDecision(mode string, durationSeconds float64, toolsSelected int) {
	m.RoutingDecisionCounter.WithLabelValues(mode).Inc()
	m.RoutingDecisionDuration.WithLabelValues(mode).Observe(durationSeconds)
	m.ToolsSelected.WithLabelValues(mode).Observe(float64(toolsSelected))
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordReward records the reward signal computed for a tool call.
func (m *Metrics) RecordReward(toolName string, reward float64) {
	m.RewardObserved.WithLabelValues(toolName).Observe(reward)
}

// RecordError increments the error counter for a given component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SetActiveSessions sets the active session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// SetToolZooSize sets the tool zoo size gauge.
func (m *Metrics) SetToolZooSize(count int) {
	m.ToolZooSize.Set(float64(count))
}

// SetDownstreamConnected sets the connection status gauge for a server.
func (m *Metrics) SetDownstreamConnected(serverID string, connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.DownstreamConnectionStatus.WithLabelValues(serverID).Set(value)
}

// RecordDatabaseQuery records metrics for a store query.
func (m *Metrics) RecordDatabaseQuery(store, operation string, durationSeconds float64) {
	m.DatabaseQueryDuration.WithLabelValues(store, operation).Observe(durationSeconds)
}

// RecordConfigReload records a config hot-reload attempt.
func (m *Metrics) RecordConfigReload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ConfigReloadCounter.WithLabelValues(status).Inc()
}

// RecordMaintenancePrune records rows removed by a scheduled maintenance job.
func (m *Metrics) RecordMaintenancePrune(target string, rows int) {
	m.MaintenanceRowsPruned.WithLabelValues(target).Add(float64(rows))
}
