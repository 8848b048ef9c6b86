package config

import (
	"fmt"
	"os"
)

// KernelConfig is a unified configuration composing the XML project file
// with the YAML RuntimeOptions layer, following UnifiedBusinessConfig's
// composed-sub-policy-struct layout with the crawl/process/sink policies
// replaced by project/runtime sections.
type KernelConfig struct {
	Project *Project
	Runtime *RuntimeOptions
}

// NewKernelConfig creates an empty unified configuration.
func NewKernelConfig() *KernelConfig {
	return &KernelConfig{Project: &Project{}, Runtime: &RuntimeOptions{}}
}

// LoadKernelConfig reads a project file from projectPath and an optional
// RuntimeOptions document from runtimePath (skipped if empty), applying
// defaults and validating both.
func LoadKernelConfig(projectPath, runtimePath string) (*KernelConfig, error) {
	data, err := os.ReadFile(projectPath)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	project, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var runtime *RuntimeOptions
	if runtimePath != "" {
		runtime, err = LoadRuntimeOptions(runtimePath)
		if err != nil {
			return nil, err
		}
	} else {
		runtime = DefaultRuntimeOptions()
	}

	cfg := &KernelConfig{Project: project, Runtime: runtime}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kernel configuration: %w", err)
	}
	return cfg, nil
}

// Validate performs comprehensive validation of the unified configuration,
// delegating to each section's own Validate.
func (c *KernelConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("kernel configuration cannot be nil")
	}
	if err := c.validateProject(); err != nil {
		return fmt.Errorf("project validation failed: %w", err)
	}
	if err := c.validateRuntime(); err != nil {
		return fmt.Errorf("runtime options validation failed: %w", err)
	}
	return nil
}

func (c *KernelConfig) validateProject() error {
	if c.Project == nil {
		return fmt.Errorf("project cannot be nil")
	}
	return c.Project.Validate()
}

func (c *KernelConfig) validateRuntime() error {
	if c.Runtime == nil {
		return fmt.Errorf("runtime options cannot be nil")
	}
	return c.Runtime.Validate()
}

// ApplyDefaults applies default values to all sections.
func (c *KernelConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	c.ApplyProjectDefaults()
	c.ApplyRuntimeDefaults()
}

// ApplyProjectDefaults applies project-section defaults.
func (c *KernelConfig) ApplyProjectDefaults() {
	if c == nil || c.Project == nil {
		return
	}
	c.Project.ApplyDefaults()
}

// ApplyRuntimeDefaults applies runtime-options defaults.
func (c *KernelConfig) ApplyRuntimeDefaults() {
	if c == nil || c.Runtime == nil {
		return
	}
	c.Runtime.ApplyDefaults()
}
