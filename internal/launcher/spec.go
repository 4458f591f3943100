package launcher

import (
	"fmt"
	"os"

	"stagectl/internal/config"
)

// ProcessSpec describes the child a launcher task starts.
type ProcessSpec struct {
	// Name identifies the task in logs and results.
	Name string
	Kind config.ProcessKind
	// EntryPoint is the fully-qualified entry point run through Runtime.
	// Empty means the built-in entry point for Kind.
	EntryPoint string
	// Command, when set, is started as-is instead of an entry point.
	Command []string
	// Runtime is the executable that hosts entry points. Empty means the
	// current executable.
	Runtime string
	// ModulePath is handed to the entry point. Empty means the working directory.
	ModulePath string
	// Args are appended after the entry point (or after Command).
	Args []string
	// Env overrides variables inherited from the harness.
	Env map[string]string
	// CaptureOutput pipes the child's stdout and stderr into the log instead
	// of inheriting the harness's streams.
	CaptureOutput bool
}

// SpecFromDefinition converts a plan process definition into a ProcessSpec,
// filling runtime and module path from the launcher settings.
func SpecFromDefinition(name string, def config.ProcessDefinition, settings config.LauncherSettings) ProcessSpec {
	return ProcessSpec{
		Name:          name,
		Kind:          def.Kind,
		EntryPoint:    def.EntryPoint,
		Command:       append([]string(nil), def.Command...),
		Runtime:       settings.Runtime,
		ModulePath:    settings.ModulePath,
		Args:          append([]string(nil), def.Args...),
		Env:           def.Env,
		CaptureOutput: def.CaptureOutput,
	}
}

// StartCommand returns the argv used to start the child.
//
// For entry points this is:
//
//	<runtime> entrypoint --module-path <path> <entry point> [-- args...]
func (s ProcessSpec) StartCommand() ([]string, error) {
	if len(s.Command) > 0 {
		argv := append([]string(nil), s.Command...)
		return append(argv, s.Args...), nil
	}

	entryPoint := s.EntryPoint
	if entryPoint == "" {
		entryPoint = config.DefaultEntryPoint(s.Kind)
	}
	if entryPoint == "" {
		return nil, fmt.Errorf("process %q has neither a command nor an entry point for kind %q", s.Name, s.Kind)
	}

	runtime := s.Runtime
	if runtime == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve runtime executable: %w", err)
		}
		runtime = exe
	}

	modulePath := s.ModulePath
	if modulePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve module path: %w", err)
		}
		modulePath = wd
	}

	argv := []string{runtime, "entrypoint", "--module-path", modulePath, entryPoint}
	if len(s.Args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, s.Args...)
	}
	return argv, nil
}
