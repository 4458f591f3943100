package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/internal/latch"
	"stagectl/internal/launcher"
	"stagectl/internal/metrics"
	"stagectl/internal/pool"
	"stagectl/internal/transport"
	"stagectl/pkg/logging"
)

const subsystem = "Orchestrator"

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTaskFactory replaces how stage tasks are created.
func WithTaskFactory(f TaskFactory) Option {
	return func(o *Orchestrator) { o.newTask = f }
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithMetrics records run metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithRequesterFactory replaces the client remote requests are sent with.
// A new requester is created for each run and closed during teardown.
func WithRequesterFactory(f func() Requester) Option {
	return func(o *Orchestrator) { o.newRequester = f }
}

// WithExecutor replaces the command executor used for probes and verifications.
func WithExecutor(e *command.Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithCaptureOutput makes every launched process log its output instead of
// inheriting the harness's streams.
func WithCaptureOutput() Option {
	return func(o *Orchestrator) { o.captureOutput = true }
}

// Orchestrator runs stages in order and owns their teardown.
type Orchestrator struct {
	executor       *command.Executor
	newTask        TaskFactory
	newRequester   func() Requester
	reporter       Reporter
	metrics        *metrics.Collector
	defaultTimeout time.Duration
	pollInterval   time.Duration
	verifySlots    int
	captureOutput  bool
}

// New creates an orchestrator from the harness configuration.
func New(cfg config.HarnessConfig, opts ...Option) *Orchestrator {
	defaultEnv := cfg.Executor.DefaultEnv
	if defaultEnv == nil {
		defaultEnv = config.DefaultEnv()
	}

	o := &Orchestrator{
		executor:       command.NewExecutor(defaultEnv),
		defaultTimeout: cfg.Orchestrator.DefaultReadinessTimeout,
		pollInterval:   cfg.Launcher.PollInterval,
		verifySlots:    cfg.Orchestrator.VerifySlots,
	}
	if o.defaultTimeout <= 0 {
		o.defaultTimeout = config.DefaultReadinessTimeout
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.newTask == nil {
		o.newTask = o.launcherTask
	}
	if o.newRequester == nil {
		o.newRequester = func() Requester {
			return transport.NewClient(transport.ClientConfig{Metrics: o.metrics})
		}
	}
	return o
}

func (o *Orchestrator) launcherTask(spec launcher.ProcessSpec, l *latch.Latch) Task {
	opts := []launcher.Option{launcher.WithPollInterval(o.pollInterval)}
	if o.captureOutput {
		opts = append(opts, launcher.WithCaptureOutput())
	}
	return launcher.New(spec, l, opts...)
}

// run holds the state of one Run call.
type run struct {
	pool      *pool.Pool
	requester Requester
	tasks     []Task

	teardownOnce sync.Once
}

// Run executes stages in order. The returned error is nil exactly when the
// run succeeded; the result is always populated.
//
// Cancelling ctx aborts the current stage. Every launched process is still
// stopped before Run returns.
func (o *Orchestrator) Run(ctx context.Context, plan string, stages []Stage) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.NewString(),
		Plan:      plan,
		StartTime: time.Now(),
		Stages:    []StageResult{},
	}
	o.reportRunStart(result, stages)

	if len(stages) == 0 {
		return o.finish(result, ErrNoStages)
	}

	r := &run{
		pool:      pool.New("orchestrator", len(stages)+o.verifySlots),
		requester: o.newRequester(),
	}
	defer o.teardown(r)

	logging.Info(subsystem, "Starting run %s (%s) with %d stages", result.RunID, plan, len(stages))

	var runErr error
	for i, stage := range stages {
		stageResult, err := o.runStage(ctx, r, stage)
		result.Stages = append(result.Stages, stageResult)
		o.metrics.StageFinished(stageResult.Name, string(stageResult.Result), stageResult.ReadyAfter)
		o.reportStageResult(stageResult)

		if err != nil {
			runErr = err
			for _, skipped := range stages[i+1:] {
				sr := StageResult{Name: skipped.Name, Result: ResultSkipped}
				result.Stages = append(result.Stages, sr)
				o.reportStageResult(sr)
			}
			break
		}
	}

	o.teardown(r)
	return o.finish(result, runErr)
}

func (o *Orchestrator) finish(result *RunResult, err error) (*RunResult, error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		logging.Error(subsystem, err, "Run %s failed after %s", result.RunID, result.Duration)
	} else {
		logging.Info(subsystem, "Run %s succeeded in %s", result.RunID, result.Duration)
	}

	o.metrics.RunFinished(result.Success, result.Duration)
	if o.reporter != nil {
		o.reporter.ReportRunResult(*result)
	}
	return result, err
}

// teardown closes the requester, stops every submitted task once in reverse
// order and waits for them to leave their loops. Safe to call repeatedly.
func (o *Orchestrator) teardown(r *run) {
	r.teardownOnce.Do(func() {
		if r.requester != nil {
			if err := r.requester.Close(); err != nil {
				logging.Debug(subsystem, "Requester closed with error: %v", err)
			}
		}

		for i := len(r.tasks) - 1; i >= 0; i-- {
			r.tasks[i].Stop()
		}

		if err := r.pool.Shutdown(); err != nil && !errors.Is(err, launcher.ErrStartFailed) {
			logging.Debug(subsystem, "Task pool drained with error: %v", err)
		}
		for range r.tasks {
			o.metrics.ProcessStopped()
		}
		logging.Debug(subsystem, "Teardown complete, %d tasks stopped", len(r.tasks))
	})
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, stage Stage) (StageResult, error) {
	sr := StageResult{Name: stage.Name, StartTime: time.Now()}

	if o.reporter != nil {
		o.reporter.ReportStageStart(stage)
	}

	fail := func(res Result, err error) (StageResult, error) {
		sr.Result = res
		sr.Error = err.Error()
		sr.EndTime = time.Now()
		sr.Duration = sr.EndTime.Sub(sr.StartTime)
		return sr, err
	}

	l := latch.New()
	task := o.newTask(stage.Process, l)
	if err := r.pool.Submit(func() error { return task.Run(ctx) }); err != nil {
		return fail(ResultError, fmt.Errorf("stage %q: failed to submit task: %w", stage.Name, err))
	}
	r.tasks = append(r.tasks, task)
	o.metrics.ProcessStarted()

	timeout := stage.ReadinessTimeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	logging.Debug(subsystem, "Waiting up to %s for stage %s", timeout, stage.Name)
	if !l.Wait(ctx, timeout) {
		if err := ctx.Err(); err != nil {
			return fail(ResultError, fmt.Errorf("stage %q: %w", stage.Name, err))
		}
		return fail(ResultFailed, fmt.Errorf("%w: stage %q after %s", ErrReadinessTimeout, stage.Name, timeout))
	}

	if task.State() == launcher.StartFailed {
		return fail(ResultFailed, fmt.Errorf("%w: stage %q: %v", ErrStartFailed, stage.Name, task.Err()))
	}
	sr.ReadyAfter = time.Since(sr.StartTime)
	sr.PID = task.PID()
	logging.Info(subsystem, "Stage %s ready after %s", stage.Name, sr.ReadyAfter.Round(time.Millisecond))

	if stage.Probe != nil {
		if err := o.probe(ctx, stage, timeout); err != nil {
			return fail(ResultFailed, err)
		}
	}

	if stage.Settle > 0 {
		select {
		case <-time.After(stage.Settle):
		case <-ctx.Done():
			return fail(ResultError, fmt.Errorf("stage %q: %w", stage.Name, ctx.Err()))
		}
	}

	sr.Verifications = o.verifyAll(ctx, r, stage)
	sr.RequestsSent = o.sendRequests(ctx, r, stage)

	var failed []string
	for _, v := range sr.Verifications {
		if v.Result == ResultFailed {
			failed = append(failed, v.Name)
		}
	}
	if len(failed) > 0 {
		return fail(ResultFailed, fmt.Errorf("%w: stage %q: %v", ErrVerificationFailed, stage.Name, failed))
	}

	sr.Result = ResultPassed
	sr.EndTime = time.Now()
	sr.Duration = sr.EndTime.Sub(sr.StartTime)
	return sr, nil
}

func (o *Orchestrator) sendRequests(ctx context.Context, r *run, stage Stage) int {
	sent := 0
	for _, req := range stage.Requests {
		if err := r.requester.Send(ctx, req, transport.NewClusterSettingsHandler()); err != nil {
			logging.Warn(subsystem, "Stage %s: %v", stage.Name, err)
			continue
		}
		sent++
	}
	return sent
}

func (o *Orchestrator) reportRunStart(result *RunResult, stages []Stage) {
	if o.reporter != nil {
		o.reporter.ReportRunStart(result.RunID, result.Plan, stages)
	}
}

func (o *Orchestrator) reportStageResult(sr StageResult) {
	if o.reporter != nil {
		o.reporter.ReportStageResult(sr)
	}
}
