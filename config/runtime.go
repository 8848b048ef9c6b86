package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nsm120/vle/kernelerr"
)

// RuntimeOptions is the YAML-backed AMBIENT layer (spec.md §6) sitting on
// top of the XML project file: kernel tuning that is not part of the VPZ
// standard. Field layout and the Validate/ApplyDefaults split follow
// GlobalSettings.
type RuntimeOptions struct {
	MetricsBackend         string   `yaml:"metrics_backend"`
	LogLevel               string   `yaml:"log_level"`
	LogFormat              string   `yaml:"log_format"`
	MaxConfluentIterations int      `yaml:"max_confluent_iterations"`
	PluginSearchPaths      []string `yaml:"plugin_search_paths"`
	TracingEnabled         bool     `yaml:"tracing_enabled"`
}

// DefaultRuntimeOptions returns RuntimeOptions with ApplyDefaults already
// run, mirroring DefaultGlobalSettings.
func DefaultRuntimeOptions() *RuntimeOptions {
	opts := &RuntimeOptions{}
	opts.ApplyDefaults()
	return opts
}

// LoadRuntimeOptions reads and validates a RuntimeOptions document from
// path, applying defaults to anything left unset.
func LoadRuntimeOptions(path string) (*RuntimeOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kernelerr.NewConfigError(path, fmt.Errorf("reading runtime options: %w", err))
	}
	var opts RuntimeOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, kernelerr.NewConfigError(path, fmt.Errorf("parsing runtime options: %w", err))
	}
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks RuntimeOptions' invariants.
func (o *RuntimeOptions) Validate() error {
	if o == nil {
		return kernelerr.NewConfigError("", fmt.Errorf("runtime options cannot be nil"))
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(o.LogLevel)] {
		return kernelerr.NewConfigError("", fmt.Errorf("invalid log level: %s", o.LogLevel))
	}
	if o.MaxConfluentIterations < 0 {
		return kernelerr.NewConfigError("", fmt.Errorf("max confluent iterations cannot be negative: %d", o.MaxConfluentIterations))
	}
	switch strings.ToLower(o.MetricsBackend) {
	case "", "prometheus", "otel", "noop":
	default:
		return kernelerr.NewConfigError("", fmt.Errorf("unknown metrics backend: %s", o.MetricsBackend))
	}
	return nil
}

// ApplyDefaults fills unset fields with sensible defaults.
func (o *RuntimeOptions) ApplyDefaults() {
	if o == nil {
		return
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "text"
	}
	if o.MaxConfluentIterations == 0 {
		o.MaxConfluentIterations = 10000
	}
	if o.MetricsBackend == "" {
		o.MetricsBackend = "prometheus"
	}
	if len(o.PluginSearchPaths) == 0 {
		o.PluginSearchPaths = []string{"./plugins", "~/.vle/plugins"}
	}
}
