package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stagectl/internal/command"
)

func newExecCmd() *cobra.Command {
	var (
		line   string
		status bool
		debug  bool
	)

	cmd := &cobra.Command{
		Use:   "exec [--line \"cmd args\"] [-- cmd args...]",
		Short: "Run one command through the command executor and print its output lines",
		Long: `The exec command runs a single command synchronously, the same way
verification commands run between stages: standard input is closed, standard
output is captured line by line and the locale is forced to C unless the
configuration says otherwise.

By default a command that cannot be started prints nothing. Use --status to
also print the exit code and any error, and to exit non-zero on failure.

Example usage:
  stagectl exec -- pwd
  stagectl exec --line "ls -la /tmp"
  stagectl exec --status -- sh -c "exit 3"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var c command.Command
			switch {
			case line != "" && len(args) > 0:
				return fmt.Errorf("--line and a command after -- are mutually exclusive")
			case line != "":
				c = command.Parse(line)
			default:
				c = command.New(args...)
			}
			if len(c.Args) == 0 {
				return command.ErrEmptyCommand
			}

			cfg, err := loadHarness(debug, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			executor := command.NewExecutor(executorEnv(cfg))
			out := cmd.OutOrStdout()

			if !status {
				for _, l := range executor.Execute(ctx, c) {
					fmt.Fprintln(out, l)
				}
				return nil
			}

			res := executor.Run(ctx, c)
			for _, l := range res.Lines {
				fmt.Fprintln(out, l)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exit code: %d\n", res.ExitCode)
			if res.Err != nil {
				return res.Err
			}
			if res.ExitCode != 0 {
				return fmt.Errorf("%s exited with code %d", c, res.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&line, "line", "", "Command line to run, split on whitespace")
	cmd.Flags().BoolVar(&status, "status", false, "Print the exit code and fail when the command does")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}
