// Package ucperrors defines the gateway's error taxonomy.
//
// Errors are distinguished by kind, not by concrete type name, so callers
// branch with errors.Is/errors.As rather than string comparison. Every kind
// here has a documented propagation rule; see the kinds listed below for what
// the caller is expected to do with each one.
package ucperrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure handled uniformly across the gateway.
type Kind string

const (
	// KindConfigInvalid is fatal at startup; the process exits.
	KindConfigInvalid Kind = "config_invalid"
	// KindIndexFailure means a Tool Zoo write (embedding or vector-store)
	// failed; the affected tool is skipped, the catalog is left intact.
	KindIndexFailure Kind = "index_failure"
	// KindToolNotFound is permanent; it is shaped into a self-correction
	// string and returned to the upstream caller.
	KindToolNotFound Kind = "tool_not_found"
	// KindNotConnected triggers a reconnect-then-retry cycle in the pool.
	KindNotConnected Kind = "not_connected"
	// KindCircuitOpen is never retried; it is surfaced to the upstream
	// caller immediately, naming the server.
	KindCircuitOpen Kind = "circuit_open"
	// KindTimeout counts as a breaker failure and is retried up to the
	// configured bound.
	KindTimeout Kind = "timeout"
	// KindDownstreamError is a server-returned error object; counted as a
	// breaker failure and retried.
	KindDownstreamError Kind = "downstream_error"
	// KindSessionMiss is translated by the Gateway into "create a new
	// session" rather than surfaced as an error.
	KindSessionMiss Kind = "session_miss"
	// KindLearningPersistFault is logged; in-memory bandit/bias state
	// continues, persistence is retried on the next cycle.
	KindLearningPersistFault Kind = "learning_persist_fault"
	// KindTelemetryWriteFault is dropped after logging; it never blocks
	// the hot path.
	KindTelemetryWriteFault Kind = "telemetry_write_fault"
)

// Error is a typed gateway error carrying a Kind plus context.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "pool.Call"
	Server  string // downstream server id, when applicable
	Tool    string // tool id, when applicable
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Server != "" && e.Tool != "":
		return fmt.Sprintf("%s: %s (server=%s tool=%s): %s", e.Op, e.Kind, e.Server, e.Tool, msg)
	case e.Server != "":
		return fmt.Sprintf("%s: %s (server=%s): %s", e.Op, e.Kind, e.Server, msg)
	case e.Tool != "":
		return fmt.Sprintf("%s: %s (tool=%s): %s", e.Op, e.Kind, e.Tool, msg)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ucperrors.ToolNotFound) works against
// any *Error of that kind, regardless of Op/Server/Tool/Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel instances used as comparison targets with errors.Is.
var (
	ToolNotFound          = &Error{Kind: KindToolNotFound}
	NotConnected          = &Error{Kind: KindNotConnected}
	CircuitOpen           = &Error{Kind: KindCircuitOpen}
	Timeout               = &Error{Kind: KindTimeout}
	DownstreamError       = &Error{Kind: KindDownstreamError}
	SessionMiss           = &Error{Kind: KindSessionMiss}
	ConfigInvalid         = &Error{Kind: KindConfigInvalid}
	IndexFailure          = &Error{Kind: KindIndexFailure}
	LearningPersistFault  = &Error{Kind: KindLearningPersistFault}
	TelemetryWriteFault   = &Error{Kind: KindTelemetryWriteFault}
)

// New builds a typed error for the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithServer attaches a downstream server id for context.
func (e *Error) WithServer(server string) *Error {
	c := *e
	c.Server = server
	return &c
}

// WithTool attaches a tool id for context.
func (e *Error) WithTool(tool string) *Error {
	c := *e
	c.Tool = tool
	return &c
}

// SelfCorrectionText renders an upstream-visible error string shaped for an
// LLM to self-correct, per the gateway's hot-path error principle: never a
// raw stack trace, always actionable text naming the tool and what was tried.
func SelfCorrectionText(toolName, description, paramSummary, argsSummary string, err error) string {
	return fmt.Sprintf(
		"Error calling tool '%s': %s. Tool description: %s. Available parameters: %s. Attempted with arguments: %s. Please try again with: - different arguments; - a different tool if unavailable.",
		toolName, err, description, paramSummary, argsSummary,
	)
}

// AsKind reports whether err is (or wraps) a *Error of the given kind.
func AsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
