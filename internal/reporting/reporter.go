// Package reporting prints run progress for humans and machines.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"stagectl/internal/orchestrator"
)

// Output formats accepted by New.
const (
	FormatConsole = "console"
	FormatQuiet   = "quiet"
	FormatJSON    = "json"
)

// New returns the reporter for format, writing to w.
func New(format string, w io.Writer, verbose, debug bool, reportPath string) (orchestrator.Reporter, error) {
	switch format {
	case "", FormatConsole:
		return NewConsoleReporter(w, verbose, debug, reportPath), nil
	case FormatQuiet:
		return NewQuietReporter(w), nil
	case FormatJSON:
		return NewJSONReporter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want %s, %s or %s)", format, FormatConsole, FormatQuiet, FormatJSON)
	}
}

// consoleReporter prints progress as stages start and finish.
type consoleReporter struct {
	out        io.Writer
	verbose    bool
	debug      bool
	reportPath string
	styles     styles
}

// NewConsoleReporter creates the default human-readable reporter.
func NewConsoleReporter(w io.Writer, verbose, debug bool, reportPath string) orchestrator.Reporter {
	return &consoleReporter{
		out:        w,
		verbose:    verbose,
		debug:      debug,
		reportPath: reportPath,
		styles:     newStyles(w),
	}
}

func (r *consoleReporter) ReportRunStart(runID, plan string, stages []orchestrator.Stage) {
	fmt.Fprintf(r.out, "%s\n", r.styles.header.Render("🚀 Starting stagectl run: "+plan))
	fmt.Fprintf(r.out, "🆔 Run: %s\n", runID)

	if r.verbose {
		fmt.Fprintf(r.out, "📋 Stages: %d\n", len(stages))
		for i, stage := range stages {
			fmt.Fprintf(r.out, "   %d. %s (%s)\n", i+1, stage.Name, describeProcess(stage))
		}
	}
	fmt.Fprintln(r.out)
}

func (r *consoleReporter) ReportStageStart(stage orchestrator.Stage) {
	if r.verbose {
		fmt.Fprintf(r.out, "🎯 Starting stage: %s\n", stage.Name)
		if stage.ReadinessTimeout > 0 {
			fmt.Fprintf(r.out, "   ⏱️  Readiness timeout: %v\n", stage.ReadinessTimeout)
		}
		if stage.Probe != nil {
			fmt.Fprintf(r.out, "   🔎 Probe: %s\n", stage.Probe.Command)
		}
		if len(stage.Verify) > 0 {
			fmt.Fprintf(r.out, "   📋 Verifications: %d\n", len(stage.Verify))
		}
		return
	}
	fmt.Fprintf(r.out, "🎯 %s... ", stage.Name)
}

func (r *consoleReporter) ReportVerification(stage string, result orchestrator.VerificationResult) {
	if !r.verbose {
		return
	}
	style := r.styles.forResult(result.Result)
	fmt.Fprintf(r.out, "   %s %s (%v, %d lines)\n",
		resultSymbol(result.Result), style.Render(result.Name), result.Duration.Round(time.Millisecond), len(result.Lines))
	if result.Error != "" {
		fmt.Fprintf(r.out, "     ❌ Error: %s\n", result.Error)
	}
	if r.debug {
		for _, line := range result.Lines {
			fmt.Fprintf(r.out, "     %s\n", r.styles.muted.Render("│ "+line))
		}
	}
}

func (r *consoleReporter) ReportStageResult(result orchestrator.StageResult) {
	symbol := resultSymbol(result.Result)
	style := r.styles.forResult(result.Result)

	if result.Result == orchestrator.ResultSkipped {
		if r.verbose {
			fmt.Fprintf(r.out, "%s Stage skipped: %s\n\n", symbol, style.Render(result.Name))
		} else {
			fmt.Fprintf(r.out, "🎯 %s... %s\n", result.Name, symbol)
		}
		return
	}

	if r.verbose {
		fmt.Fprintf(r.out, "%s Stage completed: %s (%v)\n", symbol, style.Render(result.Name), result.Duration.Round(time.Millisecond))
		if result.ReadyAfter > 0 {
			fmt.Fprintf(r.out, "   🟢 Ready after %v (PID %d)\n", result.ReadyAfter.Round(time.Millisecond), result.PID)
		}
		if result.RequestsSent > 0 {
			fmt.Fprintf(r.out, "   📤 Requests sent: %d\n", result.RequestsSent)
		}
		if result.Error != "" {
			fmt.Fprintf(r.out, "   ❌ Error: %s\n", result.Error)
		}
		fmt.Fprintln(r.out)
		return
	}

	fmt.Fprintf(r.out, "%s (%v)\n", symbol, result.Duration.Round(time.Millisecond))
	if result.Error != "" {
		fmt.Fprintf(r.out, "   %s\n", style.Render(result.Error))
	}
}

func (r *consoleReporter) ReportRunResult(result orchestrator.RunResult) {
	counts := countResults(result.Stages)

	fmt.Fprintf(r.out, "\n🏁 Run Complete\n")
	fmt.Fprintf(r.out, "⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.out, "📊 Stages:\n")
	fmt.Fprintf(r.out, "   ✅ Passed: %d\n", counts[orchestrator.ResultPassed])
	if n := counts[orchestrator.ResultFailed]; n > 0 {
		fmt.Fprintf(r.out, "   ❌ Failed: %d\n", n)
	}
	if n := counts[orchestrator.ResultError]; n > 0 {
		fmt.Fprintf(r.out, "   💥 Errors: %d\n", n)
	}
	if n := counts[orchestrator.ResultSkipped]; n > 0 {
		fmt.Fprintf(r.out, "   ⏭️  Skipped: %d\n", n)
	}
	fmt.Fprintf(r.out, "   📈 Total: %d\n", len(result.Stages))

	if result.Success {
		fmt.Fprintf(r.out, "\n%s\n", r.styles.passed.Render("🎉 All stages passed, every process stopped"))
	} else {
		fmt.Fprintf(r.out, "\n%s\n", r.styles.failed.Render("💔 Run failed: "+result.Error))
	}

	if r.reportPath != "" {
		path, err := SaveReport(r.reportPath, result)
		if err != nil {
			fmt.Fprintf(r.out, "⚠️  Failed to save detailed report: %v\n", err)
		} else {
			fmt.Fprintf(r.out, "📄 Detailed report saved to: %s\n", path)
		}
	}
}

// quietReporter only prints failures and a one-line summary.
type quietReporter struct {
	out io.Writer
}

// NewQuietReporter creates a reporter for CI logs.
func NewQuietReporter(w io.Writer) orchestrator.Reporter {
	return &quietReporter{out: w}
}

func (r *quietReporter) ReportRunStart(string, string, []orchestrator.Stage) {}

func (r *quietReporter) ReportStageStart(orchestrator.Stage) {}

func (r *quietReporter) ReportVerification(string, orchestrator.VerificationResult) {}

func (r *quietReporter) ReportStageResult(result orchestrator.StageResult) {
	if result.Result == orchestrator.ResultFailed || result.Result == orchestrator.ResultError {
		fmt.Fprintf(r.out, "%s %s: %s\n", resultSymbol(result.Result), result.Name, result.Error)
	}
}

func (r *quietReporter) ReportRunResult(result orchestrator.RunResult) {
	counts := countResults(result.Stages)
	if result.Success {
		fmt.Fprintf(r.out, "✅ All %d stages passed\n", counts[orchestrator.ResultPassed])
		return
	}
	fmt.Fprintf(r.out, "❌ %d/%d stages failed\n",
		counts[orchestrator.ResultFailed]+counts[orchestrator.ResultError], len(result.Stages))
}

// jsonReporter prints the complete result as JSON at the end of the run.
type jsonReporter struct {
	out io.Writer
}

// NewJSONReporter creates a reporter for machine consumption.
func NewJSONReporter(w io.Writer) orchestrator.Reporter {
	return &jsonReporter{out: w}
}

func (r *jsonReporter) ReportRunStart(string, string, []orchestrator.Stage) {}

func (r *jsonReporter) ReportStageStart(orchestrator.Stage) {}

func (r *jsonReporter) ReportVerification(string, orchestrator.VerificationResult) {}

func (r *jsonReporter) ReportStageResult(orchestrator.StageResult) {}

func (r *jsonReporter) ReportRunResult(result orchestrator.RunResult) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, `{"error": "Failed to marshal results: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(r.out, string(data))
}

func countResults(stages []orchestrator.StageResult) map[orchestrator.Result]int {
	counts := make(map[orchestrator.Result]int)
	for _, s := range stages {
		counts[s.Result]++
	}
	return counts
}

func describeProcess(stage orchestrator.Stage) string {
	p := stage.Process
	if len(p.Command) > 0 {
		return strings.Join(append(append([]string(nil), p.Command...), p.Args...), " ")
	}
	if p.EntryPoint != "" {
		return p.EntryPoint
	}
	return string(p.Kind)
}
