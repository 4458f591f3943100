package config

import (
	"time"
)

// HarnessConfig is the top-level configuration structure for stagectl.
type HarnessConfig struct {
	Logging      LoggingConfig        `yaml:"logging"`
	Launcher     LauncherSettings     `yaml:"launcher"`
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	Executor     ExecutorSettings     `yaml:"executor"`
	Metrics      MetricsConfig        `yaml:"metrics"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// LauncherSettings controls how launcher tasks build and supervise child processes.
type LauncherSettings struct {
	// PollInterval is how often an idle task re-checks its running flag.
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
	// Runtime is the executable used to start entry points. Empty means the current executable.
	Runtime string `yaml:"runtime,omitempty"`
	// ModulePath is passed to entry points as --module-path. Empty means the working directory.
	ModulePath string `yaml:"modulePath,omitempty"`
}

// OrchestratorSettings holds defaults applied to every plan.
type OrchestratorSettings struct {
	DefaultReadinessTimeout time.Duration `yaml:"defaultReadinessTimeout,omitempty"`
	// VerifySlots adds worker pool capacity on top of one slot per stage.
	VerifySlots int `yaml:"verifySlots,omitempty"`
}

// ExecutorSettings configures the command executor.
type ExecutorSettings struct {
	// DefaultEnv is applied to commands that carry no explicit environment.
	// Nil means the platform default (see DefaultEnv).
	DefaultEnv map[string]string `yaml:"defaultEnv,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address,omitempty"` // e.g. ":9091"; empty disables the endpoint
}

// ProcessKind names the kind of process a stage launches.
type ProcessKind string

const (
	// ProcessKindService is the long-running service every other process talks to.
	ProcessKindService ProcessKind = "service"
	// ProcessKindExtension is a satellite process that attaches to the service.
	ProcessKindExtension ProcessKind = "extension"
)

// PlanDefinition is an ordered set of stages loaded from a plan file.
type PlanDefinition struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Stages      []StageDefinition `yaml:"stages"`
}

// StageDefinition describes one ordered step: a process to launch plus what to check once it is ready.
type StageDefinition struct {
	Name             string                   `yaml:"name"`
	Process          ProcessDefinition        `yaml:"process"`
	ReadinessTimeout time.Duration            `yaml:"readinessTimeout,omitempty"`
	Settle           time.Duration            `yaml:"settle,omitempty"`
	Probe            *ProbeDefinition         `yaml:"probe,omitempty"`
	Verify           []VerificationDefinition `yaml:"verify,omitempty"`
	Requests         []RequestDefinition      `yaml:"requests,omitempty"`
}

// ProcessDefinition describes how a launcher task starts its child.
//
// Either EntryPoint (run through the configured runtime) or Command (an arbitrary
// executable) is used. When both are empty the entry point is derived from Kind.
type ProcessDefinition struct {
	Kind          ProcessKind       `yaml:"kind"`
	EntryPoint    string            `yaml:"entryPoint,omitempty"`
	Command       []string          `yaml:"command,omitempty"`
	Args          []string          `yaml:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	CaptureOutput bool              `yaml:"captureOutput,omitempty"`
}

// ProbeDefinition is a readiness check polled through the command executor
// until it exits successfully.
type ProbeDefinition struct {
	Command  []string      `yaml:"command,omitempty"`
	Line     string        `yaml:"line,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// VerificationDefinition is a command run after a stage becomes ready.
type VerificationDefinition struct {
	Name    string            `yaml:"name,omitempty"`
	Command []string          `yaml:"command,omitempty"` // pre-split tokens, used verbatim
	Line    string            `yaml:"line,omitempty"`    // whitespace-split command line
	Env     map[string]string `yaml:"env,omitempty"`
	Expect  *Expectation      `yaml:"expect,omitempty"`
}

// Expectation holds optional content checks for a verification command.
// A verification without an expectation never fails the stage.
type Expectation struct {
	Contains    []string `yaml:"contains,omitempty"`
	NotContains []string `yaml:"notContains,omitempty"`
	MinLines    int      `yaml:"minLines,omitempty"`
	ExitCode    *int     `yaml:"exitCode,omitempty"`
}

// RequestDefinition is a remote call sent to the running service once a stage is ready.
type RequestDefinition struct {
	Name   string `yaml:"name,omitempty"`
	Method string `yaml:"method,omitempty"` // defaults to GET
	URL    string `yaml:"url"`
}
