package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/observation"
)

// StreamBuilder constructs a fresh output stream for a view, matching the
// Plugin ABI's "each output-stream library likewise exposes a factory"
// (spec.md §6).
type StreamBuilder func() (observation.Stream, error)

// StreamRegistry is the output-stream analogue of factory.Registry: a
// name -> StreamBuilder lookup table populated by explicit registration
// before a Project is elaborated.
type StreamRegistry struct {
	mu       sync.RWMutex
	builders map[string]StreamBuilder
}

// NewStreamRegistry constructs an empty StreamRegistry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{builders: make(map[string]StreamBuilder)}
}

// Register adds a named StreamBuilder, overwriting any prior registration.
func (r *StreamRegistry) Register(name string, b StreamBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// Names returns every registered stream name, sorted.
func (r *StreamRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build resolves name to a fresh observation.Stream, wrapped as a
// kernelerr LoadError on failure (absence of a plugin symbol is fatal per
// spec.md §6's Plugin ABI).
func (r *StreamRegistry) Build(name string) (observation.Stream, error) {
	r.mu.RLock()
	b, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.NewLoadError(name, fmt.Errorf("no output stream factory registered for %q", name))
	}
	return b()
}
