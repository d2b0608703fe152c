package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ucpgw/ucpgw/internal/mcp"
)

// connection owns a single downstream server's *mcp.Client for the
// lifetime of the connection. All client access runs on a single goroutine
// (run) so connect, tool calls, and close always execute from the same
// owner task, avoiding the cross-goroutine handoff that trips up
// long-lived transport state.
type connection struct {
	cfg    *mcp.ServerConfig
	logger *slog.Logger

	cmds     chan func()
	stop     chan struct{}
	stopOnce sync.Once

	mu            sync.RWMutex
	client        *mcp.Client
	status        Status
	tools         []*mcp.MCPTool
	lastConnected time.Time
	errorMessage  string
}

func newConnection(cfg *mcp.ServerConfig, logger *slog.Logger) *connection {
	if logger == nil {
		logger = slog.Default()
	}
	return &connection{
		cfg:    cfg,
		logger: logger.With("pool_server", cfg.ID),
		cmds:   make(chan func(), 8),
		stop:   make(chan struct{}),
		status: StatusConnecting,
	}
}

// run is the owner task: it serializes every operation against the
// underlying client until stop is closed.
func (c *connection) run() {
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.stop:
			c.mu.Lock()
			if c.client != nil {
				if err := c.client.Close(); err != nil {
					c.logger.Warn("close error", "error", err)
				}
			}
			c.status = StatusDisconnected
			c.mu.Unlock()
			return
		}
	}
}

// submit runs fn on the owner goroutine and blocks until it completes.
func (c *connection) submit(fn func()) {
	done := make(chan struct{})
	c.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

func (c *connection) connect(ctx context.Context) error {
	var connErr error
	c.submit(func() {
		client := mcp.NewClient(c.cfg, c.logger)
		if err := client.Connect(ctx); err != nil {
			connErr = err
			return
		}

		c.mu.Lock()
		c.client = client
		c.tools = client.Tools()
		c.status = StatusConnected
		c.lastConnected = time.Now()
		c.errorMessage = ""
		c.mu.Unlock()
	})
	return connErr
}

func (c *connection) callTool(ctx context.Context, name string, arguments map[string]any) (*mcp.ToolCallResult, error) {
	var result *mcp.ToolCallResult
	var callErr error

	c.submit(func() {
		c.mu.RLock()
		client := c.client
		c.mu.RUnlock()
		if client == nil {
			callErr = fmt.Errorf("no client for server %s", c.cfg.ID)
			return
		}
		result, callErr = client.CallTool(ctx, name, arguments)
	})

	return result, callErr
}

func (c *connection) markError(err error) {
	c.mu.Lock()
	c.status = StatusError
	c.errorMessage = err.Error()
	c.mu.Unlock()
}

func (c *connection) snapshot() ServerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ServerState{
		ID:            c.cfg.ID,
		Status:        c.status,
		Tools:         c.tools,
		LastConnected: c.lastConnected,
		ErrorMessage:  c.errorMessage,
	}
}

// disconnect stops the owner task, which closes the underlying client.
// Safe to call more than once.
func (c *connection) disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })
}
