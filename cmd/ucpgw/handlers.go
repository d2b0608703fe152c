package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ucpgw/ucpgw/internal/config"
	"github.com/ucpgw/ucpgw/internal/gateway"
)

// runServe loads configuration, starts the gateway, and blocks until a
// shutdown signal arrives or the gateway exits on its own.
func runServe(cmd *cobra.Command, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	logger := slog.Default()

	logger.Info("starting gateway", "version", version, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	logger.Info("gateway started", "listen_addr", cfg.Server.ListenAddr)

	metricsServer := startMetricsServer(cfg.Server.MetricsAddr, logger)
	if metricsServer != nil {
		defer metricsServer.Close()
	}

	watcher, err := startConfigWatcher(ctx, configPath, cfg, gw, logger)
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping gateway")

	if err := gw.Stop(); err != nil {
		return fmt.Errorf("stop gateway: %w", err)
	}
	return nil
}

// startMetricsServer binds a /metrics endpoint to addr and serves it in the
// background. Returns nil if addr is empty, leaving metrics unexposed.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", addr)
	return srv
}

// startConfigWatcher wires a hot-reload watcher for the fields safe to
// change without restarting the process. Failure to start the watcher is
// non-fatal: the gateway still runs on the config it already loaded.
func startConfigWatcher(ctx context.Context, configPath string, cfg *config.Config, gw *gateway.Gateway, logger *slog.Logger) (*config.Watcher, error) {
	watcher := config.NewWatcher(configPath, cfg, logger)
	watcher.OnReload(gw.ApplyConfig)
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}

// runValidateConfig loads and schema-validates a config file without
// starting anything, for use in CI or a pre-deploy check.
func runValidateConfig(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	cmd.Printf("config OK: %d downstream server(s), router mode %q\n", len(cfg.DownstreamServers), cfg.Router.Mode)
	return nil
}
