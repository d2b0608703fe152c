// Package pool manages persistent connections to downstream MCP servers:
// subprocess/HTTP transport lifecycle, tool discovery and caching, circuit
// breaking per server, and retry with reconnect for tool calls.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ucpgw/ucpgw/internal/backoff"
	"github.com/ucpgw/ucpgw/internal/infra"
	"github.com/ucpgw/ucpgw/internal/mcp"
	"github.com/ucpgw/ucpgw/internal/ucperrors"
)

// Status describes the lifecycle state of a downstream server connection.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Config configures retry, timeout, and circuit-breaker behavior for the pool.
type Config struct {
	// MaxRetries is the number of attempts CallTool makes before giving up.
	MaxRetries int
	// CallTimeout bounds a single tool call.
	CallTimeout time.Duration
	// CircuitBreaker configures the per-server breaker.
	CircuitBreaker infra.CircuitBreakerConfig
	// Backoff computes the delay between retry attempts.
	Backoff backoff.BackoffPolicy
}

// DefaultConfig returns the pool defaults: 3 retries, 1s-based exponential
// backoff with jitter, 30s call timeout, and a breaker that opens after 5
// failures, stays open for 60s, and requires 3 consecutive half-open
// successes to close again.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		CallTimeout: 30 * time.Second,
		CircuitBreaker: infra.CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Timeout:          60 * time.Second,
		},
		Backoff: backoff.BackoffPolicy{
			InitialMs: 1000,
			MaxMs:     30000,
			Factor:    2,
			Jitter:    0.1,
		},
	}
}

// ServerState is a point-in-time snapshot of a downstream connection.
type ServerState struct {
	ID            string
	Status        Status
	Tools         []*mcp.MCPTool
	LastConnected time.Time
	ErrorMessage  string
}

// Pool manages connections to all downstream MCP servers and routes tool
// calls to the server that owns each tool.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	lazy   bool

	mu           sync.RWMutex
	servers      map[string]*connection
	configByID   map[string]*mcp.ServerConfig
	toolToServer map[string]string

	breakers *infra.CircuitBreakerRegistry
}

// New creates an eager pool: ConnectAll connects every configured server
// immediately.
func New(cfg Config, logger *slog.Logger) *Pool {
	return newPool(cfg, logger, false)
}

// NewLazy creates a pool that only indexes server configuration on ConnectAll;
// individual servers connect on first use via EnsureConnected/CallTool.
func NewLazy(cfg Config, logger *slog.Logger) *Pool {
	return newPool(cfg, logger, true)
}

func newPool(cfg Config, logger *slog.Logger, lazy bool) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Backoff.InitialMs <= 0 {
		cfg.Backoff = backoff.DefaultPolicy()
	}

	return &Pool{
		cfg:          cfg,
		logger:       logger.With("component", "pool"),
		lazy:         lazy,
		servers:      make(map[string]*connection),
		configByID:   make(map[string]*mcp.ServerConfig),
		toolToServer: make(map[string]string),
		breakers:     infra.NewCircuitBreakerRegistry(cfg.CircuitBreaker),
	}
}

// ConnectAll connects to every server in servers. For a lazy pool this only
// records configuration; servers connect on first use.
func (p *Pool) ConnectAll(ctx context.Context, servers []*mcp.ServerConfig) error {
	p.mu.Lock()
	for _, s := range servers {
		p.configByID[s.ID] = s
	}
	p.mu.Unlock()

	if p.lazy {
		p.logger.Info("lazy pool initialized", "available_servers", len(servers))
		return nil
	}

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(cfg *mcp.ServerConfig) {
			defer wg.Done()
			if err := p.connectServer(ctx, cfg); err != nil {
				p.logger.Warn("server connection failed", "server", cfg.ID, "error", err)
			}
		}(s)
	}
	wg.Wait()

	p.mu.RLock()
	connected := 0
	for _, c := range p.servers {
		if c.snapshot().Status == StatusConnected {
			connected++
		}
	}
	totalTools := len(p.toolToServer)
	p.mu.RUnlock()

	p.logger.Info("connection pool initialized",
		"total_servers", len(servers),
		"connected", connected,
		"total_tools", totalTools)
	return nil
}

// EnsureConnected connects serverID if it isn't already connected. Used by
// lazy pools, but safe to call on an eager pool too.
func (p *Pool) EnsureConnected(ctx context.Context, serverID string) error {
	p.mu.RLock()
	conn, exists := p.servers[serverID]
	p.mu.RUnlock()
	if exists && conn.snapshot().Status == StatusConnected {
		return nil
	}

	p.mu.RLock()
	cfg, ok := p.configByID[serverID]
	p.mu.RUnlock()
	if !ok {
		return ucperrors.New(ucperrors.KindNotConnected, "pool.EnsureConnected", fmt.Errorf("unknown server: %s", serverID)).WithServer(serverID)
	}

	return p.connectServer(ctx, cfg)
}

func (p *Pool) connectServer(ctx context.Context, cfg *mcp.ServerConfig) error {
	conn := newConnection(cfg, p.logger)
	go conn.run()

	p.mu.Lock()
	p.servers[cfg.ID] = conn
	p.mu.Unlock()

	if err := conn.connect(ctx); err != nil {
		conn.markError(err)
		return fmt.Errorf("connect server %s: %w", cfg.ID, err)
	}

	p.registerTools(cfg.ID, conn.snapshot().Tools)
	p.logger.Info("server connected", "server", cfg.ID, "tools", len(conn.snapshot().Tools))
	return nil
}

func (p *Pool) registerTools(serverID string, tools []*mcp.MCPTool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tool := range tools {
		p.toolToServer[serverID+"."+tool.Name] = serverID
	}
}

// CallTool resolves toolName to its owning server and invokes it, retrying
// with exponential backoff and a reconnect attempt between tries. The
// server's circuit breaker gates every attempt.
func (p *Pool) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*mcp.ToolCallResult, error) {
	serverID, downstreamName, ok := p.resolveTool(toolName)
	if !ok {
		return nil, ucperrors.New(ucperrors.KindToolNotFound, "pool.CallTool", fmt.Errorf("tool not found: %s", toolName)).WithTool(toolName)
	}

	if p.lazy {
		if err := p.EnsureConnected(ctx, serverID); err != nil {
			return nil, fmt.Errorf("ensure connected: %w", err)
		}
	}

	breaker := p.breakers.GetWithConfig(serverID, p.cfg.CircuitBreaker)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		conn, err := p.connectionFor(serverID)
		if err != nil {
			p.logger.Info("server not connected, attempting reconnect",
				"server", serverID, "attempt", attempt)
			if rerr := p.reconnect(ctx, serverID); rerr != nil {
				lastErr = rerr
				conn = nil
			} else {
				conn, err = p.connectionFor(serverID)
				if err != nil {
					lastErr = err
					conn = nil
				}
			}
		}

		if conn != nil {
			result, callErr := infra.ExecuteWithResult(breaker, ctx, func(callCtx context.Context) (*mcp.ToolCallResult, error) {
				timeoutCtx, cancel := context.WithTimeout(callCtx, p.cfg.CallTimeout)
				defer cancel()
				return conn.callTool(timeoutCtx, downstreamName, arguments)
			})
			if callErr == nil {
				return result, nil
			}
			lastErr = callErr
			if errors.Is(callErr, infra.ErrCircuitOpen) {
				return nil, ucperrors.New(ucperrors.KindCircuitOpen, "pool.CallTool", callErr).WithServer(serverID).WithTool(toolName)
			}
			conn.markError(callErr)
			p.logger.Warn("tool call failed", "tool", toolName, "server", serverID, "attempt", attempt, "error", callErr)
		}

		if attempt < p.cfg.MaxRetries {
			delay := backoff.ComputeBackoff(p.cfg.Backoff, attempt)
			p.logger.Info("retrying tool call", "tool", toolName, "delay", delay, "next_attempt", attempt+1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("tool call failed after %d attempts: %s: %w", p.cfg.MaxRetries, toolName, lastErr)
}

// resolveTool applies the pool's three-stage dispatch resolution: an exact
// fully-qualified match, a "<server>." prefix split against known servers,
// then a fallback search by bare tool name across every connected server.
func (p *Pool) resolveTool(toolName string) (serverID, downstreamName string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if sid, exists := p.toolToServer[toolName]; exists {
		name := toolName
		if prefix := sid + "."; strings.HasPrefix(toolName, prefix) {
			name = toolName[len(prefix):]
		}
		return sid, name, true
	}

	if idx := strings.Index(toolName, "."); idx >= 0 {
		prefix, rest := toolName[:idx], toolName[idx+1:]
		if _, exists := p.servers[prefix]; exists {
			return prefix, rest, true
		}
		if _, exists := p.configByID[prefix]; exists {
			return prefix, rest, true
		}
	}

	for sid, conn := range p.servers {
		for _, tool := range conn.snapshot().Tools {
			if tool.Name == toolName {
				return sid, tool.Name, true
			}
		}
	}

	return "", "", false
}

func (p *Pool) connectionFor(serverID string) (*connection, error) {
	p.mu.RLock()
	conn, exists := p.servers[serverID]
	p.mu.RUnlock()
	if !exists {
		return nil, ucperrors.New(ucperrors.KindNotConnected, "pool.connectionFor", fmt.Errorf("server not connected: %s", serverID)).WithServer(serverID)
	}
	if conn.snapshot().Status != StatusConnected {
		return nil, ucperrors.New(ucperrors.KindNotConnected, "pool.connectionFor", fmt.Errorf("server not connected: %s", serverID)).WithServer(serverID)
	}
	return conn, nil
}

func (p *Pool) reconnect(ctx context.Context, serverID string) error {
	p.mu.RLock()
	old, hasOld := p.servers[serverID]
	cfg, hasCfg := p.configByID[serverID]
	p.mu.RUnlock()
	if !hasCfg {
		return fmt.Errorf("server config not found: %s", serverID)
	}
	if hasOld {
		old.disconnect()
	}

	return p.connectServer(ctx, cfg)
}

// Disconnect tears down a single server's connection.
func (p *Pool) Disconnect(serverID string) error {
	p.mu.Lock()
	conn, exists := p.servers[serverID]
	if exists {
		delete(p.servers, serverID)
	}
	for tool, sid := range p.toolToServer {
		if sid == serverID {
			delete(p.toolToServer, tool)
		}
	}
	p.mu.Unlock()

	if exists {
		conn.disconnect()
	}
	return nil
}

// DisconnectAll tears down every server connection.
func (p *Pool) DisconnectAll() error {
	p.mu.Lock()
	conns := make([]*connection, 0, len(p.servers))
	for _, c := range p.servers {
		conns = append(conns, c)
	}
	p.servers = make(map[string]*connection)
	p.toolToServer = make(map[string]string)
	p.mu.Unlock()

	for _, c := range conns {
		c.disconnect()
	}
	p.logger.Info("connection pool shutdown")
	return nil
}

// Status returns a snapshot of every server the pool knows about, connected
// or not.
func (p *Pool) Status() map[string]ServerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]ServerState, len(p.configByID))
	for id := range p.configByID {
		if conn, exists := p.servers[id]; exists {
			out[id] = conn.snapshot()
		} else {
			out[id] = ServerState{ID: id, Status: StatusDisconnected}
		}
	}
	return out
}

// AllTools returns tool schemas for every connected server, fully-qualified
// as "<server>.<tool>".
func (p *Pool) AllTools() []mcp.ToolSchema {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var schemas []mcp.ToolSchema
	for id, conn := range p.servers {
		for _, tool := range conn.snapshot().Tools {
			schemas = append(schemas, mcp.ToolSchema{
				ServerID:    id,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}
	return schemas
}
