// Package sessions tracks per-conversation state: message history bounded
// by a ring buffer, active toolset, and per-tool usage counters, backed by
// an in-memory cache over a durable SQLite store.
package sessions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one turn in a session's conversation history.
type Message struct {
	ID         uuid.UUID      `json:"id"`
	Role       string         `json:"role"` // user | assistant | system | tool
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Session is the working state of one conversation: the MemGPT-style "RAM"
// that sits in front of the durable store.
type Session struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages    []Message      `json:"messages"`
	ActiveTools []string       `json:"active_tools"`
	ToolUsage   map[string]int `json:"tool_usage"`
	Scratchpad  map[string]any `json:"scratchpad"`
	UserContext map[string]any `json:"user_context"`
	maxMessages int
}

// NewSession creates a fresh session, bounding its in-memory message ring
// buffer to maxMessages (0 means unbounded).
func NewSession(maxMessages int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          uuid.New(),
		CreatedAt:   now,
		UpdatedAt:   now,
		ToolUsage:   make(map[string]int),
		Scratchpad:  make(map[string]any),
		UserContext: make(map[string]any),
		maxMessages: maxMessages,
	}
}

// AddMessage appends a message. Once the ring exceeds maxMessages, the
// oldest half is archived into one synthetic summary message rather than
// silently dropped.
func (s *Session) AddMessage(role, content string, opts ...func(*Message)) Message {
	msg := Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	s.Messages = append(s.Messages, msg)
	if s.maxMessages > 0 && len(s.Messages) > s.maxMessages {
		s.Archive(s.maxMessages / 2)
	}
	s.UpdatedAt = time.Now().UTC()
	return msg
}

// Archive collapses every message but the keepRecent most recent ones into
// one synthetic system message summarizing what was archived, and appends
// that summary. Returns the summary text and how many messages were
// archived, or ("", 0) if there was nothing to archive.
func (s *Session) Archive(keepRecent int) (string, int) {
	if len(s.Messages) <= keepRecent {
		return "", 0
	}

	toArchive := s.Messages[:len(s.Messages)-keepRecent]
	s.Messages = s.Messages[len(s.Messages)-keepRecent:]

	toolsUsed := make(map[string]struct{})
	userMsgCount := 0
	for _, msg := range toArchive {
		if msg.ToolName != "" {
			toolsUsed[msg.ToolName] = struct{}{}
		}
		if msg.Role == "user" {
			userMsgCount++
		}
	}

	var parts []string
	if len(toolsUsed) > 0 {
		names := make([]string, 0, len(toolsUsed))
		for t := range toolsUsed {
			names = append(names, t)
		}
		parts = append(parts, fmt.Sprintf("Tools used: %s", strings.Join(names, ", ")))
	}
	if userMsgCount > 0 {
		parts = append(parts, fmt.Sprintf("User topics: %d messages archived", userMsgCount))
	}

	summary := "Previous context archived"
	if len(parts) > 0 {
		summary = strings.Join(parts, " | ")
	}

	s.Messages = append(s.Messages, Message{
		ID:        uuid.New(),
		Role:      "system",
		Content:   fmt.Sprintf("[Archived context] %s", summary),
		Timestamp: time.Now().UTC(),
	})
	return summary, len(toArchive)
}

// WithToolCall sets the tool_call_id/tool_name fields on a message built by AddMessage.
func WithToolCall(toolCallID, toolName string) func(*Message) {
	return func(m *Message) {
		m.ToolCallID = toolCallID
		m.ToolName = toolName
	}
}

// RecordToolUse increments the usage counter for a tool and adds it to the
// active toolset if it isn't already present.
func (s *Session) RecordToolUse(toolName string) {
	if s.ToolUsage == nil {
		s.ToolUsage = make(map[string]int)
	}
	s.ToolUsage[toolName]++
	for _, t := range s.ActiveTools {
		if t == toolName {
			return
		}
	}
	s.ActiveTools = append(s.ActiveTools, toolName)
}

// ToolUsageStat summarizes usage of one tool across one or all sessions.
type ToolUsageStat struct {
	Uses        int     `json:"uses"`
	SuccessRate float64 `json:"success_rate"`
	AvgTimeMS   float64 `json:"avg_time_ms"`
}
