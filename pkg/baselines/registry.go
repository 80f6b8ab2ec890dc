package baselines

import (
	"fmt"
	"slices"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]JoinFunc{
		"sparse_join": SparseJoin,
		"ann_join":    ANNJoin,
		"nmslib_join": ANNJoin,
		"lsh_join":    LSHJoin,
	}
)

// Register adds or replaces a baseline.
func Register(name string, fn JoinFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Lookup returns the baseline registered under name.
func Lookup(name string) (JoinFunc, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBaseline, name)
	}
	return fn, nil
}

// Names lists the registered baselines in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
