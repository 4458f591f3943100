// Package entrypoint holds the processes stagectl can start as children of
// itself: a long-running service and a satellite extension that attaches to it.
package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"stagectl/internal/config"
)

const subsystem = "Entrypoint"

// ErrUnknownEntryPoint is returned by Lookup for unregistered identifiers.
var ErrUnknownEntryPoint = errors.New("unknown entry point")

// Func runs an entry point until ctx is done. args are the arguments that
// followed the entry point identifier.
type Func func(ctx context.Context, args []string) error

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{}
)

func init() {
	Register(config.EntryPointService, RunService)
	Register(config.EntryPointExtension, RunExtension)
}

// Register makes fn available under id, replacing any previous registration.
func Register(id string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = fn
}

// Lookup returns the entry point registered under id.
func Lookup(id string) (Func, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, id)
	}
	return fn, nil
}

// IDs lists registered identifiers in sorted order.
func IDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
