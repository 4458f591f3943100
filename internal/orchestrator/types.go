package orchestrator

import (
	"context"
	"time"

	"stagectl/internal/command"
	"stagectl/internal/config"
	"stagectl/internal/latch"
	"stagectl/internal/launcher"
	"stagectl/internal/transport"
)

// Result is the outcome of a stage or verification.
type Result string

const (
	ResultPassed  Result = "PASSED"
	ResultFailed  Result = "FAILED"
	ResultError   Result = "ERROR"
	ResultSkipped Result = "SKIPPED"
)

// Stage is one ordered step of a run.
type Stage struct {
	Name    string
	Process launcher.ProcessSpec
	// ReadinessTimeout bounds the latch wait and the readiness probe.
	// Zero means the orchestrator's default.
	ReadinessTimeout time.Duration
	// Settle is an extra delay after readiness before verifications run.
	Settle   time.Duration
	Probe    *ProbeSpec
	Verify   []Verification
	Requests []transport.Request
}

// ProbeSpec is a command polled until it exits zero.
type ProbeSpec struct {
	Command  command.Command
	Interval time.Duration
}

// Verification is a command run once its stage is ready.
type Verification struct {
	Name    string
	Command command.Command
	// Expect is optional. Without it the verification never fails the stage.
	Expect *config.Expectation
}

// VerificationResult records one verification command.
type VerificationResult struct {
	Name     string        `json:"name"`
	Command  string        `json:"command"`
	Result   Result        `json:"result"`
	Lines    []string      `json:"lines"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StageResult records one stage.
type StageResult struct {
	Name          string               `json:"name"`
	Result        Result               `json:"result"`
	StartTime     time.Time            `json:"start_time"`
	EndTime       time.Time            `json:"end_time"`
	Duration      time.Duration        `json:"duration"`
	ReadyAfter    time.Duration        `json:"ready_after,omitempty"`
	PID           int                  `json:"pid,omitempty"`
	Verifications []VerificationResult `json:"verifications,omitempty"`
	RequestsSent  int                  `json:"requests_sent,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// RunResult records a whole run.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Plan      string        `json:"plan"`
	Success   bool          `json:"success"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Stages    []StageResult `json:"stages"`
	Error     string        `json:"error,omitempty"`
}

// Task is the part of a launcher task the orchestrator drives.
type Task interface {
	Run(ctx context.Context) error
	Stop()
	State() launcher.State
	Err() error
	PID() int
}

// TaskFactory creates the task for a stage. The task must count l down once
// it has spawned its process or failed to.
type TaskFactory func(spec launcher.ProcessSpec, l *latch.Latch) Task

// Requester sends remote requests to running processes.
type Requester interface {
	Send(ctx context.Context, req transport.Request, sink transport.ResponseSink) error
	Close() error
}

// Reporter is told about run progress as it happens.
type Reporter interface {
	ReportRunStart(runID, plan string, stages []Stage)
	ReportStageStart(stage Stage)
	ReportVerification(stage string, result VerificationResult)
	ReportStageResult(result StageResult)
	ReportRunResult(result RunResult)
}
