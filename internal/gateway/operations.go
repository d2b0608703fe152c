package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ucpgw/ucpgw/internal/bandit"
	"github.com/ucpgw/ucpgw/internal/mcp"
	"github.com/ucpgw/ucpgw/internal/routing"
	"github.com/ucpgw/ucpgw/internal/sessions"
	"github.com/ucpgw/ucpgw/internal/telemetry"
	"github.com/ucpgw/ucpgw/internal/toolzoo"
	"github.com/ucpgw/ucpgw/internal/ucperrors"
)

const defaultMaxContextTokens = 4000

// recentMessageWindow bounds how much session history feeds the routing
// query; the session itself may keep a longer ring buffer.
const recentMessageWindow = 10

// Initialize returns the session for id, creating one if it doesn't exist
// yet. This is the gateway's analog of an MCP client's "initialize" call.
func (g *Gateway) Initialize(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	return g.sessions.GetOrCreate(ctx, id)
}

// ToolSelection is the result of a list_tools call: the routing decision
// plus the resolved tool records it points at, in selection order.
type ToolSelection struct {
	Decision routing.Decision
	Tools    []*toolzoo.Tool
}

// ListTools records message as the current user turn, routes it through the
// Routing Pipeline using the session's recent history and per-tool usage
// counts, and returns the selected tool slate.
func (g *Gateway) ListTools(ctx context.Context, sessionID uuid.UUID, message string) (*ToolSelection, error) {
	ctx, span := g.tracer.TraceRouteDecision(ctx, g.cfg.Router.Mode, sessionID.String())
	defer span.End()

	session, err := g.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		g.tracer.RecordError(span, err)
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.AddMessage("user", message)

	in := routing.RouteInput{
		SessionID:        sessionID,
		RecentMessages:   recentMessageContents(session),
		CurrentMessage:   message,
		ToolUsageCounts:  session.ToolUsage,
		MaxContextTokens: defaultMaxContextTokens,
	}
	start := time.Now()
	decision, err := g.pipeline.Route(ctx, in)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		g.metrics.RecordError("routing", "route_failed")
		g.tracer.RecordError(span, err)
		return nil, fmt.Errorf("route: %w", err)
	}
	g.metrics.RecordRoutingDecision(g.cfg.Router.Mode, elapsed, len(decision.SelectedTools))

	if err := g.sessions.Save(ctx, session); err != nil {
		g.tracer.RecordError(span, err)
		return nil, fmt.Errorf("save session: %w", err)
	}
	g.metrics.SetActiveSessions(g.sessions.Count())

	tools := make([]*toolzoo.Tool, 0, len(decision.SelectedTools))
	for _, name := range decision.SelectedTools {
		if t, ok := g.zoo.Get(name); ok {
			tools = append(tools, t)
		}
	}
	return &ToolSelection{Decision: decision, Tools: tools}, nil
}

func recentMessageContents(session *sessions.Session) []string {
	msgs := session.Messages
	if len(msgs) > recentMessageWindow {
		msgs = msgs[len(msgs)-recentMessageWindow:]
	}
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// CallToolRequest carries the routing context a tool call was selected
// under, so the outcome can be fed back to the learners that picked it.
type CallToolRequest struct {
	SessionID      uuid.UUID
	RoutingEventID uuid.UUID
	ToolName       string
	Arguments      map[string]any
	SelectionRank  int
	WasSelected    bool
	SchemaTokens   int
}

// CallTool dispatches req through the Connection Pool, records session and
// telemetry state, and feeds the computed reward back into the bandit
// scorer and bias store so the next routing decision for this tool
// reflects the outcome.
func (g *Gateway) CallTool(ctx context.Context, req CallToolRequest) (*mcp.ToolCallResult, error) {
	ctx, span := g.tracer.TraceToolCall(ctx, req.ToolName)
	defer span.End()

	session, err := g.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		g.tracer.RecordError(span, err)
		return nil, fmt.Errorf("get session: %w", err)
	}

	start := time.Now()
	result, callErr := g.pool.CallTool(ctx, req.ToolName, req.Arguments)
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0
	elapsedSeconds := elapsedMS / 1000.0

	success := callErr == nil && (result == nil || !result.IsError)
	errClass := ""
	if callErr != nil {
		errClass = "pool_error"
	} else if result != nil && result.IsError {
		errClass = "tool_error"
	}

	status := "success"
	if !success {
		status = "error"
		g.metrics.RecordError("pool", errClass)
		g.tracer.RecordError(span, callErr)
	}
	g.metrics.RecordToolExecution(req.ToolName, status, elapsedSeconds)

	if recErr := g.sessions.RecordToolUse(ctx, session, req.ToolName); recErr != nil {
		g.logger.Warn("record tool use failed", "session", req.SessionID, "tool", req.ToolName, "error", recErr)
	}

	callEvent := telemetry.ToolCallEvent{
		EventID:         uuid.New(),
		SessionID:       req.SessionID,
		RoutingEventID:  req.RoutingEventID,
		Timestamp:       time.Now().UTC(),
		ToolName:        req.ToolName,
		Success:         success,
		ErrorClass:      errClass,
		ExecutionTimeMS: elapsedMS,
		WasSelected:     req.WasSelected,
		SelectionRank:   req.SelectionRank,
	}
	if err := g.telemetry.LogToolCall(ctx, callEvent); err != nil {
		g.logger.Warn("log tool call failed", "tool", req.ToolName, "error", err)
	}

	isFollowupRetry := session.ToolUsage[req.ToolName] > 1
	reward := g.rewardCalc.Calculate(success, elapsedMS, req.SchemaTokens, isFollowupRetry)
	reward.EventID = uuid.New()
	reward.ToolCallEventID = callEvent.EventID
	reward.ToolName = req.ToolName
	reward.Timestamp = callEvent.Timestamp
	if err := g.telemetry.LogReward(ctx, reward); err != nil {
		g.logger.Warn("log reward failed", "tool", req.ToolName, "error", err)
	}

	g.metrics.RecordReward(req.ToolName, reward.TotalReward)
	g.applyReward(ctx, req.ToolName, elapsedMS, req.SchemaTokens, reward.TotalReward)

	if err := g.sessions.Save(ctx, session); err != nil {
		g.logger.Warn("save session failed", "session", req.SessionID, "error", err)
	}

	if callErr != nil {
		desc, params := "", "none"
		if tool, ok := g.zoo.Get(req.ToolName); ok {
			desc = tool.Description
			params = tool.ParamSummary()
		}
		argsJSON, _ := json.Marshal(req.Arguments)
		return nil, errors.New(ucperrors.SelfCorrectionText(req.ToolName, desc, params, string(argsJSON), callErr))
	}
	return result, nil
}

// applyReward feeds a computed reward into both learners keyed on toolName.
// The Routing Pipeline extracts its candidate features at selection time
// from signals this call doesn't have access to (semantic/keyword/domain
// match); this feedback pass rebuilds the same 7-dimensional vector shape
// from what the call itself observed (this tool's rolling success rate,
// this call's latency, and its schema size), leaving the selection-time-only
// signals at their neutral midpoint rather than inventing values for them.
func (g *Gateway) applyReward(ctx context.Context, toolName string, elapsedMS float64, schemaTokens int, reward float64) {
	successRate := 0.5
	if stats, err := g.telemetry.GetToolStats(ctx, toolName); err == nil && stats.TotalCalls > 0 {
		successRate = stats.RollingSuccessRate
	}
	features := g.featureFx.Extract(bandit.CandidateSignals{
		SemanticScore: 0.5,
		KeywordScore:  0.5,
		DomainMatch:   false,
		SuccessRate:   successRate,
		LatencyMS:     elapsedMS,
		SchemaTokens:  schemaTokens,
	})
	if err := g.scorer.Update(ctx, features, reward); err != nil {
		g.logger.Warn("bandit update failed", "tool", toolName, "error", err)
	}
	if err := g.biasStore.Update(ctx, toolName, reward, nil); err != nil {
		g.logger.Warn("bias update failed", "tool", toolName, "error", err)
	}
}

// UpdateContext merges fields into a session's scratchpad, the gateway's
// equivalent of MCP's "context/update" notification.
func (g *Gateway) UpdateContext(ctx context.Context, sessionID uuid.UUID, fields map[string]any) error {
	session, err := g.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	for k, v := range fields {
		session.Scratchpad[k] = v
	}
	return g.sessions.Save(ctx, session)
}
