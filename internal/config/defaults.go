package config

import (
	"runtime"
	"time"
)

const (
	// DefaultPollInterval is how often idle launcher tasks re-check their running flag.
	DefaultPollInterval = 5 * time.Second
	// DefaultReadinessTimeout bounds each stage's readiness wait when the plan sets none.
	DefaultReadinessTimeout = 10 * time.Second
	// DefaultProbeInterval is the delay between readiness probe attempts.
	DefaultProbeInterval = 500 * time.Millisecond
	// DefaultServicePort is where the built-in service entry point listens.
	DefaultServicePort = 9200

	// EntryPointService is the fully-qualified entry point of the built-in service.
	EntryPointService = "stagectl.service"
	// EntryPointExtension is the fully-qualified entry point of the built-in extension.
	EntryPointExtension = "stagectl.extension"
)

// DefaultEnv returns the locale-forcing environment applied to commands that
// carry no explicit environment, chosen for the running platform.
func DefaultEnv() map[string]string {
	return DefaultEnvFor(runtime.GOOS)
}

// DefaultEnvFor returns the locale-forcing environment for goos.
func DefaultEnvFor(goos string) map[string]string {
	if goos == "windows" {
		return map[string]string{"LANGUAGE": "C"}
	}
	return map[string]string{"LC_ALL": "C"}
}

// DefaultEntryPoint maps a process kind to its built-in entry point.
func DefaultEntryPoint(kind ProcessKind) string {
	switch kind {
	case ProcessKindService:
		return EntryPointService
	case ProcessKindExtension:
		return EntryPointExtension
	default:
		return ""
	}
}

// GetDefaultConfig returns the configuration used when no file overrides anything.
func GetDefaultConfig() HarnessConfig {
	return HarnessConfig{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Launcher: LauncherSettings{
			PollInterval: DefaultPollInterval,
		},
		Orchestrator: OrchestratorSettings{
			DefaultReadinessTimeout: DefaultReadinessTimeout,
		},
	}
}

// DefaultPlan starts the built-in service, then the extension, and checks the
// working directory once both are up.
func DefaultPlan() PlanDefinition {
	return PlanDefinition{
		Name:        "default",
		Description: "Start the service, then the extension, and verify the harness environment",
		Stages: []StageDefinition{
			{
				Name:             "service",
				Process:          ProcessDefinition{Kind: ProcessKindService},
				ReadinessTimeout: DefaultReadinessTimeout,
				Settle:           time.Second,
				Requests: []RequestDefinition{
					{Name: "cluster-settings", URL: "http://localhost:9200/_cluster/settings"},
				},
			},
			{
				Name:             "extension",
				Process:          ProcessDefinition{Kind: ProcessKindExtension},
				ReadinessTimeout: DefaultReadinessTimeout,
				Verify: []VerificationDefinition{
					{Name: "working-directory", Line: "pwd", Expect: &Expectation{MinLines: 1}},
				},
			},
		},
	}
}
