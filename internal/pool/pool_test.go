package pool

import (
	"context"
	"testing"
	"time"

	"github.com/ucpgw/ucpgw/internal/mcp"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p := New(DefaultConfig(), nil)
	t.Cleanup(func() { _ = p.DisconnectAll() })
	return p
}

func seedConnectedServer(t *testing.T, p *Pool, serverID string, tools []*mcp.MCPTool) {
	t.Helper()
	cfg := &mcp.ServerConfig{ID: serverID, Transport: mcp.TransportStdio, Command: "echo"}
	conn := newConnection(cfg, p.logger)
	go conn.run()
	t.Cleanup(conn.disconnect)

	conn.mu.Lock()
	conn.status = StatusConnected
	conn.tools = tools
	conn.mu.Unlock()

	p.mu.Lock()
	p.servers[serverID] = conn
	p.configByID[serverID] = cfg
	p.mu.Unlock()
	p.registerTools(serverID, tools)
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.CircuitBreaker.Timeout != 60*time.Second {
		t.Errorf("expected 60s breaker timeout, got %v", cfg.CircuitBreaker.Timeout)
	}
	if cfg.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("expected failure threshold 5, got %d", cfg.CircuitBreaker.FailureThreshold)
	}
}

func TestResolveToolExactMatch(t *testing.T) {
	p := newTestPool(t)
	seedConnectedServer(t, p, "gmail", []*mcp.MCPTool{{Name: "send_email"}})

	serverID, downstream, ok := p.resolveTool("gmail.send_email")
	if !ok || serverID != "gmail" || downstream != "send_email" {
		t.Errorf("expected gmail/send_email, got %q/%q ok=%v", serverID, downstream, ok)
	}
}

func TestResolveToolPrefixSplit(t *testing.T) {
	p := newTestPool(t)
	seedConnectedServer(t, p, "github", []*mcp.MCPTool{{Name: "create.pr"}})

	// The downstream tool name itself contains a dot; only the known
	// server prefix should be stripped.
	serverID, downstream, ok := p.resolveTool("github.create.pr")
	if !ok || serverID != "github" || downstream != "create.pr" {
		t.Errorf("expected github/create.pr, got %q/%q ok=%v", serverID, downstream, ok)
	}
}

func TestResolveToolUnknownPrefixFallsBackToBareName(t *testing.T) {
	p := newTestPool(t)
	seedConnectedServer(t, p, "calendar", []*mcp.MCPTool{{Name: "mock.echo"}})

	serverID, downstream, ok := p.resolveTool("mock.echo")
	if !ok || serverID != "calendar" || downstream != "mock.echo" {
		t.Errorf("expected fallback match on calendar/mock.echo, got %q/%q ok=%v", serverID, downstream, ok)
	}
}

func TestResolveToolNotFound(t *testing.T) {
	p := newTestPool(t)
	if _, _, ok := p.resolveTool("nope"); ok {
		t.Error("expected no match for unknown tool")
	}
}

func TestStatusReportsDisconnectedForKnownUnconnectedServer(t *testing.T) {
	p := newTestPool(t)
	p.mu.Lock()
	p.configByID["stripe"] = &mcp.ServerConfig{ID: "stripe"}
	p.mu.Unlock()

	statuses := p.Status()
	st, ok := statuses["stripe"]
	if !ok || st.Status != StatusDisconnected {
		t.Errorf("expected stripe disconnected, got %+v ok=%v", st, ok)
	}
}

func TestDisconnectRemovesServerAndTools(t *testing.T) {
	p := newTestPool(t)
	seedConnectedServer(t, p, "gmail", []*mcp.MCPTool{{Name: "send_email"}})

	if err := p.Disconnect("gmail"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, _, ok := p.resolveTool("gmail.send_email"); ok {
		t.Error("expected tool mapping removed after disconnect")
	}
}

func TestAllToolsListsQualifiedNames(t *testing.T) {
	p := newTestPool(t)
	seedConnectedServer(t, p, "gmail", []*mcp.MCPTool{{Name: "send_email"}})

	schemas := p.AllTools()
	if len(schemas) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(schemas))
	}
	if schemas[0].ServerID != "gmail" || schemas[0].Name != "send_email" {
		t.Errorf("unexpected schema: %+v", schemas[0])
	}
}

func TestCallToolUnknownToolReturnsError(t *testing.T) {
	p := newTestPool(t)
	_, err := p.CallTool(context.Background(), "nope.tool", nil)
	if err == nil {
		t.Error("expected error for unknown tool")
	}
}
