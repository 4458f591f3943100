package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"stagectl/internal/config"
	"stagectl/pkg/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stagectl",
	Short: "Launch cooperating processes in order and verify them between stages",
	Long: `stagectl starts a long-running service, waits until it is up, starts the
extensions that attach to it, runs verification commands between stages and
stops every process it launched when the run ends, whatever the outcome.

Plans are YAML files listing the stages to run. Without a plan, stagectl runs
its built-in service and extension.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid plans, failed runs)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stagectl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newEntrypointCmd())
	rootCmd.AddCommand(newMCPCmd())
}

// loadHarness loads the layered configuration and initializes logging on logOut.
// debug overrides the configured level.
func loadHarness(debug bool, logOut io.Writer) (config.HarnessConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cfg, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logging.LevelDebug
	}
	if cfg.Logging.Format == "json" {
		logging.InitForJSON(level, logOut)
	} else {
		logging.InitForCLI(level, logOut)
	}
	return cfg, nil
}

// executorEnv returns the environment the command executor applies by default.
func executorEnv(cfg config.HarnessConfig) map[string]string {
	if cfg.Executor.DefaultEnv != nil {
		return cfg.Executor.DefaultEnv
	}
	return config.DefaultEnv()
}

// contextOrBackground guards against commands executed without a context.
func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
