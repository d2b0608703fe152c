// Package telemetry is the append-only event log for routing decisions,
// tool calls, and reward signals, plus a materialized per-tool stats cache
// kept current as events are logged.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// CandidateInfo records one candidate's feature breakdown at selection time,
// kept alongside the routing event for offline analysis of the scoring
// function.
type CandidateInfo struct {
	ToolName           string  `json:"tool_name"`
	BaseScore          float64 `json:"base_score"`
	KeywordScore       float64 `json:"keyword_score"`
	DomainMatch        bool    `json:"domain_match"`
	CooccurrenceBoost  float64 `json:"cooccurrence_boost"`
	BanditScore        float64 `json:"bandit_score"`
	BiasAdjustment     float64 `json:"bias_adjustment"`
	FinalScore         float64 `json:"final_score"`
	SchemaTokens       int     `json:"schema_tokens"`
}

// RoutingEvent is emitted once per routing decision.
type RoutingEvent struct {
	EventID             uuid.UUID       `json:"event_id"`
	SessionID           uuid.UUID       `json:"session_id"`
	Timestamp           time.Time       `json:"timestamp"`
	QueryHash           string          `json:"query_hash"`
	QueryText           string          `json:"query_text,omitempty"`
	Candidates          []CandidateInfo `json:"candidates"`
	SelectedTools       []string        `json:"selected_tools"`
	TotalCandidates     int             `json:"total_candidates"`
	ContextTokensUsed   int             `json:"context_tokens_used"`
	MaxContextTokens    int             `json:"max_context_tokens"`
	SelectionTimeMS     float64         `json:"selection_time_ms"`
	Strategy            string          `json:"strategy"`
	ExplorationTriggered bool           `json:"exploration_triggered"`
	TraceID             string          `json:"trace_id,omitempty"`
}

// ToolCallEvent is emitted once per downstream tool invocation.
type ToolCallEvent struct {
	EventID          uuid.UUID `json:"event_id"`
	SessionID        uuid.UUID `json:"session_id"`
	RoutingEventID   uuid.UUID `json:"routing_event_id"`
	Timestamp        time.Time `json:"timestamp"`
	ToolName         string    `json:"tool_name"`
	Success          bool      `json:"success"`
	ErrorClass       string    `json:"error_class,omitempty"`
	ExecutionTimeMS  float64   `json:"execution_time_ms"`
	WasSelected      bool      `json:"was_selected"`
	SelectionRank    int       `json:"selection_rank"`
}

// RewardSignal is the computed learning feedback for one tool call.
type RewardSignal struct {
	EventID             uuid.UUID `json:"event_id"`
	ToolCallEventID     uuid.UUID `json:"tool_call_event_id"`
	ToolName            string    `json:"tool_name"`
	Timestamp           time.Time `json:"timestamp"`
	SuccessReward       float64   `json:"success_reward"`
	LatencyPenalty      float64   `json:"latency_penalty"`
	ContextCostPenalty  float64   `json:"context_cost_penalty"`
	FollowupPenalty     float64   `json:"followup_penalty"`
	TotalReward         float64   `json:"total_reward"`
}

// ToolStats is the materialized per-tool statistics row.
type ToolStats struct {
	ToolName            string    `json:"tool_name"`
	TotalCalls          int       `json:"total_calls"`
	SuccessCount        int       `json:"success_count"`
	FailureCount        int       `json:"failure_count"`
	AvgLatencyMS        float64   `json:"avg_latency_ms"`
	AvgReward           float64   `json:"avg_reward"`
	RollingSuccessRate  float64   `json:"rolling_success_rate"`
	LastUpdated         time.Time `json:"last_updated"`
}

// HashQuery returns a stable, privacy-preserving identifier for a raw query
// string: the first 16 hex characters of its SHA-256 digest. Routing events
// store this by default; the raw text is only persisted when an operator
// opts into verbose query logging.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}
