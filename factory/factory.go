// Package factory implements the Model Factory (C7), redesigned per
// spec.md §9: instead of a runtime dlopen/plugin ABI baked into the core,
// a Registry maps a dynamics-type name to a factory closure. Optional
// Go-plugin loading lives in factory/pluginadapter, kept out of the core
// so the extensibility contract never has to be embedded in it.
package factory

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/simulator"
)

// Factory builds a fresh Dynamics instance for the Simulator being bound.
type Factory func(sim *simulator.Simulator) (dynamics.Dynamics, error)

// Registry is the name -> Factory lookup table, populated at startup by
// explicit registration and, optionally, by a plugin adapter's discovery
// pass. Teardown order is reverse of construction (LIFO), tracked by an
// io.Closer stack, matching "plugin resources outlive all Simulators that
// depend on it" (spec.md §4.5).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	closers   []io.Closer // LIFO teardown order
	searchLog []string    // paths tried, for LoadError diagnostics
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds an in-process factory under name, overwriting any prior
// registration (later registrations win, matching a re-elaborated project
// picking up a newer in-process Dynamics implementation).
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterCloser pushes c onto the teardown stack. Call this once per
// resource a Factory allocates outside of the Dynamics instances it
// produces (e.g. a loaded plugin handle).
func (r *Registry) RegisterCloser(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

// NoteSearchPath records a path the caller tried while resolving name, so a
// subsequent Lookup failure can report every path tried.
func (r *Registry) NoteSearchPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchLog = append(r.searchLog, path)
}

// Lookup resolves name to a Factory. On failure it reports every path
// noted via NoteSearchPath, wrapped as a kernelerr LoadError.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	paths := append([]string(nil), r.searchLog...)
	r.mu.RUnlock()
	if !ok {
		return nil, kernelerr.NewLoadError(name, fmt.Errorf("no Dynamics factory registered for %q (searched: %v)", name, paths))
	}
	return f, nil
}

// Names returns every registered factory name, sorted, for diagnostics and
// deterministic elaboration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close tears down every registered closer in reverse (LIFO) order,
// returning the first error encountered but attempting every closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
