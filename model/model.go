// Package model implements the DEVS model graph (C6): a recursive tree of
// AtomicModel leaves and CoupledModel internal nodes, with typed ports and
// connections. Struct composition and field-visibility conventions follow
// models/models.go and internal/pipeline/pipeline.go's config-composition
// style (nested structs referencing each other by name, not pointer soup).
package model

import (
	"fmt"

	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/kernelerr"
)

// Port is a named, directional connection point declared on a model.
type Port struct {
	Name string
}

// AtomicModel is a leaf of the model tree. Its Simulator binding is
// recorded as an arena index (SimulatorID), not a pointer, per spec.md §9.
type AtomicModel struct {
	Name       string
	InputPorts []Port
	OutputPort []Port
	Simulator  event.SimulatorID
	Parent     *CoupledModel
}

// Connection is one edge of a CoupledModel's internal wiring.
type Connection struct {
	SourceModel string
	SourcePort  string
	TargetModel string
	TargetPort  string
}

// CoupledModel is an internal node owning a mapping from child name to
// child Model, plus the three connection sets from spec.md §3.
type CoupledModel struct {
	Name       string
	InputPorts []Port
	OutputPort []Port
	Parent     *CoupledModel

	children map[string]Model

	// InputToInternal routes an event arriving on the coupled model's own
	// input port to a child's input port.
	InputToInternal []Connection
	// InternalToInternal routes a child's output port to a sibling
	// child's input port.
	InternalToInternal []Connection
	// InternalToOutput routes a child's output port up to the coupled
	// model's own output port.
	InternalToOutput []Connection
}

// Model is implemented by both AtomicModel and CoupledModel.
type Model interface {
	ModelName() string
}

func (a *AtomicModel) ModelName() string   { return a.Name }
func (c *CoupledModel) ModelName() string  { return c.Name }

// NewCoupledModel constructs an empty coupled model.
func NewCoupledModel(name string) *CoupledModel {
	return &CoupledModel{Name: name, children: make(map[string]Model)}
}

// AddChild attaches child under c, enforcing invariant 2 (unique sibling
// names) from spec.md §3.
func (c *CoupledModel) AddChild(child Model) error {
	name := child.ModelName()
	if _, exists := c.children[name]; exists {
		return kernelerr.NewConfigError(c.Name, fmt.Errorf("duplicate child model name %q", name))
	}
	c.children[name] = child
	switch m := child.(type) {
	case *AtomicModel:
		m.Parent = c
	case *CoupledModel:
		m.Parent = c
	}
	return nil
}

// Child returns the named child, or nil if absent.
func (c *CoupledModel) Child(name string) Model { return c.children[name] }

// Children returns every direct child, in no particular order; callers
// needing deterministic elaboration order should sort by name themselves
// (the factory does, to keep Simulator arena-index assignment stable).
func (c *CoupledModel) Children() map[string]Model { return c.children }

// Connect appends conn to the set named by kind ("input-to-internal",
// "internal-to-internal", or "internal-to-output").
func (c *CoupledModel) Connect(kind string, conn Connection) error {
	switch kind {
	case "input-to-internal":
		c.InputToInternal = append(c.InputToInternal, conn)
	case "internal-to-internal":
		c.InternalToInternal = append(c.InternalToInternal, conn)
	case "internal-to-output":
		c.InternalToOutput = append(c.InternalToOutput, conn)
	default:
		return kernelerr.NewConfigError(c.Name, fmt.Errorf("unknown connection kind %q", kind))
	}
	return nil
}

// Validate checks invariants 1-3 from spec.md §3 for c and its subtree:
// every connection endpoint refers to an existing (model,port) pair in the
// correct scope, and (transitively, via AddChild already enforcing it)
// sibling names are unique.
func (c *CoupledModel) Validate() error {
	hasPort := func(m Model, portName string, output bool) bool {
		switch mm := m.(type) {
		case *AtomicModel:
			ports := mm.InputPorts
			if output {
				ports = mm.OutputPort
			}
			for _, p := range ports {
				if p.Name == portName {
					return true
				}
			}
		case *CoupledModel:
			ports := mm.InputPorts
			if output {
				ports = mm.OutputPort
			}
			for _, p := range ports {
				if p.Name == portName {
					return true
				}
			}
		}
		return false
	}
	checkEndpoint := func(modelName, portName string, output, isSelf bool) error {
		if isSelf {
			if !hasPort(c, portName, output) {
				return kernelerr.NewConfigError(c.Name, fmt.Errorf("connection refers to missing own port %q", portName))
			}
			return nil
		}
		child, ok := c.children[modelName]
		if !ok {
			return kernelerr.NewConfigError(c.Name, fmt.Errorf("connection refers to missing child model %q", modelName))
		}
		if !hasPort(child, portName, output) {
			return kernelerr.NewConfigError(c.Name, fmt.Errorf("connection refers to missing port %q on model %q", portName, modelName))
		}
		return nil
	}
	for _, conn := range c.InputToInternal {
		if err := checkEndpoint(conn.SourceModel, conn.SourcePort, false, true); err != nil {
			return err
		}
		if err := checkEndpoint(conn.TargetModel, conn.TargetPort, false, false); err != nil {
			return err
		}
	}
	for _, conn := range c.InternalToInternal {
		if err := checkEndpoint(conn.SourceModel, conn.SourcePort, true, false); err != nil {
			return err
		}
		if err := checkEndpoint(conn.TargetModel, conn.TargetPort, false, false); err != nil {
			return err
		}
	}
	for _, conn := range c.InternalToOutput {
		if err := checkEndpoint(conn.SourceModel, conn.SourcePort, true, false); err != nil {
			return err
		}
		if err := checkEndpoint(conn.TargetModel, conn.TargetPort, true, true); err != nil {
			return err
		}
	}
	for _, child := range c.children {
		if cc, ok := child.(*CoupledModel); ok {
			if err := cc.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Classes is a registry of named reusable CoupledModel templates, resolved
// at elaboration time by the Model Factory before Simulators are bound
// (supplemented from original_source vle/vpz: class-based instantiation of
// coupled-model subtrees under multiple parent paths).
type Classes struct {
	templates map[string]*CoupledModel
}

// NewClasses constructs an empty class registry.
func NewClasses() *Classes { return &Classes{templates: make(map[string]*CoupledModel)} }

// Define registers a named template.
func (cl *Classes) Define(name string, tmpl *CoupledModel) { cl.templates[name] = tmpl }

// Resolve returns the named template, or a ConfigError if it is undefined.
// The registered template itself is returned, not a copy.
func (cl *Classes) Resolve(name string) (*CoupledModel, error) {
	tmpl, ok := cl.templates[name]
	if !ok {
		return nil, kernelerr.NewConfigError("", fmt.Errorf("class %q is not defined", name))
	}
	return tmpl, nil
}
