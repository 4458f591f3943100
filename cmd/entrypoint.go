package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stagectl/internal/entrypoint"
	"stagectl/pkg/logging"
)

func newEntrypointCmd() *cobra.Command {
	var (
		modulePath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:    "entrypoint <id> [-- args...]",
		Short:  "Run a built-in process (used by launched stages)",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return entrypoint.IDs(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := entrypoint.Lookup(args[0])
			if err != nil {
				return err
			}

			if _, err := loadHarness(debug, os.Stderr); err != nil {
				return err
			}

			if modulePath != "" {
				if err := os.Chdir(modulePath); err != nil {
					return fmt.Errorf("failed to enter module path %s: %w", modulePath, err)
				}
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.Info("Entrypoint", "Starting %s (PID %d)", args[0], os.Getpid())
			return fn(ctx, args[1:])
		},
	}

	cmd.Flags().StringVar(&modulePath, "module-path", "", "Directory the entry point runs in")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}
