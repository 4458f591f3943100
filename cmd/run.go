package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stagectl/internal/config"
	"stagectl/internal/metrics"
	"stagectl/internal/orchestrator"
	"stagectl/internal/reporting"
	"stagectl/pkg/logging"
)

type runOptions struct {
	planPath    string
	timeout     time.Duration
	reportPath  string
	output      string
	verbose     bool
	debug       bool
	metricsAddr string
	capture     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a plan: launch each stage, verify it and tear everything down",
		Long: `The run command executes the stages of a plan in order.

For every stage stagectl launches the stage's process, waits until it has been
spawned (up to the stage's readiness timeout), optionally polls a readiness
probe, then runs the stage's verification commands and sends its requests.
A stage that fails to start, never becomes ready or fails a verification
expectation aborts the run. Every launched process is stopped exactly once,
in reverse start order, before stagectl exits.

Example usage:
  stagectl run                              # Built-in service + extension plan
  stagectl run --plan plans/smoke.yaml      # Run a plan file
  stagectl run --plan p.yaml --verbose      # Show verifications as they run
  stagectl run --output json                # Machine-readable result on stdout
  stagectl run --report ./reports           # Also save a JSON report
  stagectl run --metrics-addr :9091         # Expose Prometheus metrics`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case reporting.FormatConsole, reporting.FormatQuiet, reporting.FormatJSON:
			default:
				return fmt.Errorf("invalid output '%s', must be one of: console, quiet, json", opts.output)
			}
			if opts.timeout < 0 {
				return fmt.Errorf("timeout must not be negative, got %s", opts.timeout)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.planPath, "plan", "", "Path to a plan YAML file (default: built-in plan)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall run timeout (0 disables it)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Directory to save a detailed JSON report in")
	cmd.Flags().StringVarP(&opts.output, "output", "o", reporting.FormatConsole, "Output format: console, quiet or json")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Show stage details and verification results")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging and show verification output")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9091")
	cmd.Flags().BoolVar(&opts.capture, "capture-output", false, "Log the output of launched processes instead of inheriting the terminal")

	_ = cmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{reporting.FormatConsole, reporting.FormatQuiet, reporting.FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runPlan(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadHarness(opts.debug, os.Stderr)
	if err != nil {
		return err
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(contextOrBackground(cmd.Context()))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			if opts.output == reporting.FormatConsole {
				fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping processes...")
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	var plan config.PlanDefinition
	if opts.planPath != "" {
		plan, err = config.LoadPlan(opts.planPath, cfg)
		if err != nil {
			return err
		}
	} else {
		plan = config.ApplyPlanDefaults(config.DefaultPlan(), cfg)
	}

	reporter, err := reporting.New(opts.output, cmd.OutOrStdout(), opts.verbose, opts.debug, opts.reportPath)
	if err != nil {
		return err
	}

	collector := metrics.New()
	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Address
	}
	if metricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, metricsAddr); err != nil {
				logging.Error("Metrics", err, "Metrics endpoint stopped")
			}
		}()
	}

	runCtx := ctx
	if opts.timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(ctx, opts.timeout)
		defer timeoutCancel()
	}

	orchestratorOpts := []orchestrator.Option{
		orchestrator.WithReporter(reporter),
		orchestrator.WithMetrics(collector),
	}
	if opts.capture || opts.output == reporting.FormatJSON {
		orchestratorOpts = append(orchestratorOpts, orchestrator.WithCaptureOutput())
	}

	o := orchestrator.New(cfg, orchestratorOpts...)
	if _, err := o.Run(runCtx, plan.Name, orchestrator.StagesFromPlan(plan, cfg)); err != nil {
		// The reporter has already described the failure.
		cancel()
		os.Exit(1)
	}
	return nil
}
