package command

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrEmptyCommand is returned when a command has no program token.
	ErrEmptyCommand = errors.New("empty command")
	// ErrSpawn wraps failures to start the child process.
	ErrSpawn = errors.New("failed to start command")
	// ErrRead wraps failures while reading the child's output.
	ErrRead = errors.New("failed to read command output")
)

// Command is a program plus its arguments and optional environment overrides.
// It is treated as immutable once constructed.
type Command struct {
	// Args holds the program followed by its arguments.
	Args []string
	// Env overrides the executor's default environment when non-nil.
	// Variables not listed are inherited from the current process.
	Env map[string]string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// New builds a command from pre-split tokens, taken verbatim. Use it when
// arguments may themselves contain spaces.
func New(args ...string) Command {
	return Command{Args: append([]string(nil), args...)}
}

// Parse builds a command by splitting line on whitespace.
func Parse(line string) Command {
	return Command{Args: strings.Fields(line)}
}

// WithEnv returns a copy of c carrying env as its environment overrides.
func (c Command) WithEnv(env map[string]string) Command {
	out := Command{Args: append([]string(nil), c.Args...), Dir: c.Dir}
	if env != nil {
		out.Env = make(map[string]string, len(env))
		for k, v := range env {
			out.Env[k] = v
		}
	}
	return out
}

// WithDir returns a copy of c running in dir.
func (c Command) WithDir(dir string) Command {
	out := c.WithEnv(c.Env)
	out.Dir = dir
	return out
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// MergeEnv merges overrides into base (KEY=VALUE form). Overridden keys are
// dropped from base and appended in key order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := overrides[key]; overridden {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
