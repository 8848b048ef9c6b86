// Package pluginadapter optionally loads .so files built with
// `go build -buildmode=plugin` and registers their exported Dynamics
// factory with a factory.Registry. This preserves spec.md §4.5's
// lookup-order and diagnostic-on-failure contract without embedding a
// plugin ABI into the kernel core itself.
package pluginadapter

import (
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/factory"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/simulator"
)

// NewDynamicsSymbol is the exported symbol name every plugin must define:
//
//	var NewDynamics = func(sim *simulator.Simulator) (dynamics.Dynamics, error) { ... }
const NewDynamicsSymbol = "NewDynamics"

// LoadInto searches dirs, in order, for a file named name+".so", opens the
// first one found, resolves its NewDynamics symbol, and registers it with
// reg under name. Every path tried is recorded on reg for LoadError
// diagnostics on failure.
func LoadInto(reg *factory.Registry, name string, dirs ...string) error {
	var lastErr error
	for _, dir := range dirs {
		path := filepath.Join(dir, name+".so")
		reg.NoteSearchPath(path)
		p, err := plugin.Open(path)
		if err != nil {
			lastErr = err
			continue
		}
		sym, err := p.Lookup(NewDynamicsSymbol)
		if err != nil {
			return kernelerr.NewLoadError(name, fmt.Errorf("plugin %s missing symbol %s: %w", path, NewDynamicsSymbol, err))
		}
		ctor, ok := sym.(func(*simulator.Simulator) (dynamics.Dynamics, error))
		if !ok {
			return kernelerr.NewLoadError(name, fmt.Errorf("plugin %s symbol %s has wrong signature", path, NewDynamicsSymbol))
		}
		reg.Register(name, factory.Factory(ctor))
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no search directories configured")
	}
	return kernelerr.NewLoadError(name, fmt.Errorf("plugin %q not found in any search directory: %w", name, lastErr))
}
