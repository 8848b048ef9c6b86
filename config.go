package vle

import (
	"github.com/nsm120/vle/config"
	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/factory"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/simulator"
)

// options accumulates the construction-time choices New() cannot get from
// the project/runtime files themselves: in-process Dynamics/stream
// factories and plugin search directories.
type options struct {
	dynamicsFactories map[string]factory.Factory
	streamBuilders    map[string]config.StreamBuilder
	pluginDirs        []string
}

// Option configures a Kernel at construction time.
type Option func(*options)

// WithDynamics registers an in-process Dynamics factory under name, taking
// precedence over any plugin discovered for the same name.
func WithDynamics(name string, f func(sim *simulator.Simulator) (dynamics.Dynamics, error)) Option {
	return func(o *options) {
		if o.dynamicsFactories == nil {
			o.dynamicsFactories = make(map[string]factory.Factory)
		}
		o.dynamicsFactories[name] = f
	}
}

// WithStream registers an output-stream builder under name, available to
// any view in the project whose output attribute matches.
func WithStream(name string, b func() (observation.Stream, error)) Option {
	return func(o *options) {
		if o.streamBuilders == nil {
			o.streamBuilders = make(map[string]config.StreamBuilder)
		}
		o.streamBuilders[name] = b
	}
}

// WithPluginDirs appends directories searched for a .so Dynamics plugin
// for any dynamics entry not satisfied by an explicit WithDynamics call.
func WithPluginDirs(dirs ...string) Option {
	return func(o *options) {
		o.pluginDirs = append(o.pluginDirs, dirs...)
	}
}
