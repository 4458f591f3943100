package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/pkg/logging"
)

// probe polls the stage's readiness probe until it exits zero or timeout elapses.
func (o *Orchestrator) probe(ctx context.Context, stage Stage, timeout time.Duration) error {
	interval := stage.Probe.Interval
	if interval <= 0 {
		interval = config.DefaultProbeInterval
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		res := o.executor.Run(probeCtx, stage.Probe.Command)
		if res.OK() {
			logging.Debug(subsystem, "Probe for stage %s succeeded after %d attempts", stage.Name, attempts)
			return nil
		}
		logging.Debug(subsystem, "Probe %s for stage %s not ready (exit %d, err %v)", stage.Probe.Command, stage.Name, res.ExitCode, res.Err)

		select {
		case <-ticker.C:
		case <-probeCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("stage %q: %w", stage.Name, ctx.Err())
			}
			return fmt.Errorf("%w: stage %q probe %q failed %d times in %s", ErrReadinessTimeout, stage.Name, stage.Probe.Command, attempts, timeout)
		}
	}
}

// verifyAll runs the stage's verifications. With spare pool slots they run
// concurrently; results keep the declared order either way.
func (o *Orchestrator) verifyAll(ctx context.Context, r *run, stage Stage) []VerificationResult {
	if len(stage.Verify) == 0 {
		return nil
	}

	results := make([]VerificationResult, len(stage.Verify))
	var wg sync.WaitGroup
	for i, v := range stage.Verify {
		if o.verifySlots > 0 {
			wg.Add(1)
			err := r.pool.Submit(func() error {
				defer wg.Done()
				results[i] = o.verify(ctx, v)
				return nil
			})
			if err == nil {
				continue
			}
			wg.Done()
		}
		results[i] = o.verify(ctx, v)
	}
	wg.Wait()

	for _, res := range results {
		o.metrics.VerificationFinished(string(res.Result))
		if o.reporter != nil {
			o.reporter.ReportVerification(stage.Name, res)
		}
	}
	return results
}

func (o *Orchestrator) verify(ctx context.Context, v Verification) VerificationResult {
	start := time.Now()
	res := o.executor.Run(ctx, v.Command)

	vr := VerificationResult{
		Name:     v.Name,
		Command:  v.Command.String(),
		Result:   ResultPassed,
		Lines:    res.Lines,
		ExitCode: res.ExitCode,
		Duration: time.Since(start),
	}
	if vr.Name == "" {
		vr.Name = vr.Command
	}
	if res.Err != nil {
		vr.Error = res.Err.Error()
	}

	if err := checkExpectation(v.Expect, res); err != nil {
		vr.Result = ResultFailed
		vr.Error = err.Error()
	}

	logging.Debug(subsystem, "Verification %s: %s (%d lines)", vr.Name, vr.Result, len(vr.Lines))
	return vr
}

// checkExpectation applies exp to res. A nil expectation always passes, even
// for a command that produced nothing or could not be run.
func checkExpectation(exp *config.Expectation, res command.Result) error {
	if exp == nil {
		return nil
	}

	var problems []string
	if exp.ExitCode != nil {
		switch {
		case res.Err != nil:
			problems = append(problems, fmt.Sprintf("expected exit code %d, command did not complete: %v", *exp.ExitCode, res.Err))
		case res.ExitCode != *exp.ExitCode:
			problems = append(problems, fmt.Sprintf("expected exit code %d, got %d", *exp.ExitCode, res.ExitCode))
		}
	}
	if len(res.Lines) < exp.MinLines {
		problems = append(problems, fmt.Sprintf("expected at least %d lines, got %d", exp.MinLines, len(res.Lines)))
	}

	output := strings.Join(res.Lines, "\n")
	for _, want := range exp.Contains {
		if !strings.Contains(output, want) {
			problems = append(problems, fmt.Sprintf("output does not contain %q", want))
		}
	}
	for _, unwanted := range exp.NotContains {
		if strings.Contains(output, unwanted) {
			problems = append(problems, fmt.Sprintf("output contains %q", unwanted))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(problems, "; "))
	}
	return nil
}
