package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stagectl/internal/mcpserver"
	"stagectl/internal/metrics"
)

func newMCPCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve stagectl runs and command execution as MCP tools over stdio",
		Long: `The mcp command runs stagectl as an MCP server using stdio transport.

It exposes two tools:
  stagectl_run_plan   Run a plan (or the built-in one) and return the result
  stagectl_execute    Run one command and return its output lines

Logs go to stderr. Processes launched by a run always have their output
captured so that stdout carries only the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadHarness(debug, os.Stderr)
			if err != nil {
				return err
			}

			server := mcpserver.New(cfg, rootCmd.Version, metrics.New())
			if err := server.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}
