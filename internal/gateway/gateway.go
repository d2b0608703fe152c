// Package gateway wires the Session Manager, Routing Pipeline, Tool Zoo,
// and Connection Pool into the upstream-facing operations a client speaks:
// initialize, list tools, call a tool, and update session context.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ucpgw/ucpgw/internal/bandit"
	"github.com/ucpgw/ucpgw/internal/bias"
	"github.com/ucpgw/ucpgw/internal/config"
	"github.com/ucpgw/ucpgw/internal/cron"
	"github.com/ucpgw/ucpgw/internal/embedding/ollama"
	"github.com/ucpgw/ucpgw/internal/embedding/openai"
	"github.com/ucpgw/ucpgw/internal/observability"
	"github.com/ucpgw/ucpgw/internal/pool"
	"github.com/ucpgw/ucpgw/internal/routing"
	"github.com/ucpgw/ucpgw/internal/sessions"
	"github.com/ucpgw/ucpgw/internal/telemetry"
	"github.com/ucpgw/ucpgw/internal/toolzoo"
	"github.com/ucpgw/ucpgw/internal/toolzoo/postgres"
)

// Gateway is the assembled gateway process: every subsystem the upstream
// operations delegate to, plus the reward-shaping glue between a tool call's
// outcome and the bandit/bias learners.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	pool       *pool.Pool
	zoo        *toolzoo.ToolZoo
	pipeline   *routing.Pipeline
	sessions   *sessions.Manager
	telemetry  telemetry.Store
	scorer     *bandit.Scorer
	biasStore  *bias.Store
	biasAdj    *bias.Adjuster
	rewardCalc *telemetry.RewardCalculator
	featureFx  *bandit.FeatureExtractor

	metrics         *observability.Metrics
	tracer          *observability.Tracer
	tracerShutdown  func(context.Context) error
	scheduler       *cron.Scheduler
	cancelScheduler context.CancelFunc
}

// New builds every subsystem from cfg but does not connect to any
// downstream server; call Start for that.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vectors, err := buildVectorStore(cfg.ToolZoo)
	if err != nil {
		return nil, fmt.Errorf("build vector store: %w", err)
	}
	embedder, err := buildEmbedder(cfg.ToolZoo)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	zoo := toolzoo.New(toolzoo.NewEmbedder(embedder), vectors, cfg.ToolZoo.Build(), logger)

	scorer, err := bandit.New(cfg.Bandit.Build(), logger)
	if err != nil {
		return nil, fmt.Errorf("build bandit scorer: %w", err)
	}
	biasStore, err := bias.New(cfg.BiasLearning.Build(), logger)
	if err != nil {
		return nil, fmt.Errorf("build bias store: %w", err)
	}
	biasAdj := bias.NewAdjuster(biasStore)

	telStore, err := telemetry.NewSQLiteStore(cfg.Telemetry.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("build telemetry store: %w", err)
	}

	sessionStore, err := sessions.NewSQLiteStore(cfg.Session.SQLitePath, cfg.Session.MaxMessages, logger)
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}
	sessionMgr := sessions.NewManager(cfg.Session.Build(), sessionStore, logger)

	routerCfg := cfg.Router.Build()
	pipeline := routing.New(routerCfg, zoo, scorer, biasAdj, telStore, logger)

	var p *pool.Pool
	if cfg.AnyLazy() {
		p = pool.NewLazy(cfg.PoolConfig(), logger)
	} else {
		p = pool.New(cfg.PoolConfig(), logger)
	}

	metrics := observability.NewMetrics()

	otlpEndpoint := ""
	if cfg.Server.TracingEnabled {
		otlpEndpoint = cfg.Server.OTLPEndpoint
	}
	serviceName := cfg.Server.Name
	if serviceName == "" {
		serviceName = "ucpgw"
	}
	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName: serviceName,
		Endpoint:    otlpEndpoint,
	})

	g := &Gateway{
		cfg:            cfg,
		logger:         logger,
		pool:           p,
		zoo:            zoo,
		pipeline:       pipeline,
		sessions:       sessionMgr,
		telemetry:      telStore,
		scorer:         scorer,
		biasStore:      biasStore,
		biasAdj:        biasAdj,
		rewardCalc:     telemetry.NewRewardCalculator(telemetry.DefaultRewardCalculatorConfig()),
		featureFx:      bandit.NewFeatureExtractor(bandit.DefaultFeatureExtractorConfig()),
		metrics:        metrics,
		tracer:         tracer,
		tracerShutdown: tracerShutdown,
	}

	scheduler, err := cron.NewScheduler(cfg.Cron, cron.MaintenanceRunnerFunc(g.runMaintenance), cron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build cron scheduler: %w", err)
	}
	g.scheduler = scheduler

	return g, nil
}

// runMaintenance dispatches a scheduled maintenance job's target to the
// matching store's Cleanup method, and records the outcome in metrics.
func (g *Gateway) runMaintenance(ctx context.Context, target string, maxAge time.Duration) (int, error) {
	var rows int
	var err error
	switch target {
	case "telemetry":
		rows, err = g.telemetry.Cleanup(ctx, maxAge)
	case "sessions":
		rows, err = g.sessions.Cleanup(ctx, maxAge)
	default:
		return 0, fmt.Errorf("unsupported maintenance target %q", target)
	}
	if err == nil {
		g.metrics.RecordMaintenancePrune(target, rows)
	}
	return rows, err
}

func buildEmbedder(s config.ToolZooSettings) (toolzoo.Provider, error) {
	switch s.EmbedderProvider {
	case "", "ollama":
		return ollama.New(ollama.Config{BaseURL: s.Embedder.BaseURL, Model: s.Embedder.Model})
	case "openai":
		return openai.New(openai.Config{APIKey: s.Embedder.APIKey, BaseURL: s.Embedder.BaseURL, Model: s.Embedder.Model})
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", s.EmbedderProvider)
	}
}

func buildVectorStore(s config.ToolZooSettings) (toolzoo.VectorStore, error) {
	switch s.VectorStoreBackend {
	case "", "sqlite":
		path := s.SQLitePath
		if path == "" {
			path = "toolzoo.db"
		}
		return toolzoo.NewSQLiteVectorStore(path)
	case "postgres":
		return toolzoo.NewPostgresVectorStore(postgres.Config{DSN: s.PostgresDSN, RunMigrations: true})
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", s.VectorStoreBackend)
	}
}

// Start connects to every configured downstream server (or, for a lazy
// pool, just indexes them) and registers whatever tools are already
// discoverable into the Tool Zoo.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.pool.ConnectAll(ctx, g.cfg.MCPServers()); err != nil {
		return fmt.Errorf("connect downstream servers: %w", err)
	}
	if err := g.syncTools(ctx); err != nil {
		return fmt.Errorf("sync tool zoo: %w", err)
	}
	g.metrics.SetToolZooSize(len(g.zoo.All()))
	for id, state := range g.pool.Status() {
		g.metrics.SetDownstreamConnected(id, state.Status == pool.StatusConnected)
	}

	if g.cfg.Cron.Enabled {
		schedulerCtx, cancel := context.WithCancel(context.Background())
		g.cancelScheduler = cancel
		if err := g.scheduler.Start(schedulerCtx); err != nil {
			cancel()
			return fmt.Errorf("start cron scheduler: %w", err)
		}
	}
	return nil
}

// Metrics returns the gateway's Prometheus metrics, for exposing a
// /metrics HTTP endpoint.
func (g *Gateway) Metrics() *observability.Metrics {
	return g.metrics
}

// syncTools refreshes the Tool Zoo's catalog from whatever the pool has
// discovered so far. Safe to call again after a lazily-connected server
// comes up.
func (g *Gateway) syncTools(ctx context.Context) error {
	schemas := g.pool.AllTools()
	tools := make([]*toolzoo.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, &toolzoo.Tool{
			ID:          s.ServerID + "." + s.Name,
			Name:        s.Name,
			DisplayName: s.Name,
			Description: s.Description,
			ServerID:    s.ServerID,
			InputSchema: s.InputSchema,
		})
	}
	if len(tools) == 0 {
		return nil
	}
	return g.zoo.Register(ctx, tools)
}

// ApplyConfig pushes a config hot-reload into the Routing Pipeline and Tool
// Zoo, the only two subsystems with fields a reload is allowed to touch.
// Intended to be wired as a config.Watcher's OnReload callback.
func (g *Gateway) ApplyConfig(cfg *config.Config) {
	g.pipeline.UpdateConfig(cfg.Router.Build())
	g.zoo.UpdateConfig(cfg.ToolZoo.Build())
	g.metrics.RecordConfigReload(nil)
	g.logger.Info("applied config hot-reload")
}

// Stop releases every held resource: downstream connections, the
// telemetry/session/bandit/bias stores, and the vector store behind the
// Tool Zoo.
func (g *Gateway) Stop() error {
	var errs []error

	if g.cancelScheduler != nil {
		g.cancelScheduler()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := g.scheduler.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop cron scheduler: %w", err))
		}
		cancel()
	}
	if g.tracerShutdown != nil {
		if err := g.tracerShutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}

	if err := g.pool.DisconnectAll(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect pool: %w", err))
	}
	if err := g.scorer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bandit scorer: %w", err))
	}
	if err := g.biasStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bias store: %w", err))
	}
	if err := g.telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close telemetry store: %w", err))
	}
	if err := g.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session store: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("gateway shutdown: %v", errs)
	}
	return nil
}
