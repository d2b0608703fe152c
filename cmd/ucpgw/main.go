// Package main provides the CLI entry point for ucpgw, the universal
// control plane gateway: a tool-routing layer that sits between an LLM
// client and a fleet of MCP servers, selecting which tools to surface for
// each turn instead of dumping every tool's schema into context.
//
// # Basic usage
//
//	ucpgw serve --config ucpgw.yaml
//	ucpgw validate-config --config ucpgw.yaml
//	ucpgw version
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the command tree. Separated from main so tests can
// exercise it without invoking os.Exit.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ucpgw",
		Short:        "ucpgw - intelligent tool-routing gateway for MCP servers",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildValidateConfigCmd(),
		buildVersionCmd(),
	)
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("ucpgw %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
