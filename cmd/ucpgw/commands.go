package main

import "github.com/spf13/cobra"

const defaultConfigPath = "ucpgw.yaml"

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Long: `Start the gateway: load configuration, connect to every configured
downstream MCP server, and begin serving tool-routing requests.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default config file
  ucpgw serve

  # Start with a custom config file
  ucpgw serve --config /etc/ucpgw/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildValidateConfigCmd creates the "validate-config" command.
func buildValidateConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and schema-validate a config file without starting the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
