package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/ucpgw/ucpgw/internal/mcp"
)

func newTestConnection(t *testing.T) *connection {
	t.Helper()
	cfg := &mcp.ServerConfig{ID: "test", Transport: mcp.TransportStdio, Command: "echo"}
	conn := newConnection(cfg, nil)
	go conn.run()
	t.Cleanup(conn.disconnect)
	return conn
}

func TestNewConnectionStartsConnecting(t *testing.T) {
	conn := newTestConnection(t)
	if st := conn.snapshot().Status; st != StatusConnecting {
		t.Errorf("expected connecting status, got %s", st)
	}
}

func TestMarkErrorSetsStatusAndMessage(t *testing.T) {
	conn := newTestConnection(t)
	conn.markError(errors.New("boom"))

	snap := conn.snapshot()
	if snap.Status != StatusError {
		t.Errorf("expected error status, got %s", snap.Status)
	}
	if snap.ErrorMessage != "boom" {
		t.Errorf("expected error message 'boom', got %q", snap.ErrorMessage)
	}
}

func TestCallToolWithoutClientReturnsError(t *testing.T) {
	conn := newTestConnection(t)
	_, err := conn.callTool(context.Background(), "whatever", nil)
	if err == nil {
		t.Error("expected error calling tool with no client")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	conn := newTestConnection(t)
	conn.disconnect()
	conn.disconnect() // must not panic
}

func TestSubmitRunsOnOwnerGoroutine(t *testing.T) {
	conn := newTestConnection(t)
	ran := false
	conn.submit(func() { ran = true })
	if !ran {
		t.Error("expected submitted function to run")
	}
}
