// Package config implements the project file object model (spec.md §6): an
// XML document describing structures, dynamics, classes, experiment,
// conditions, views and observables, plus a YAML-backed RuntimeOptions layer
// for kernel tuning that sits outside the VPZ standard. Struct composition
// and the Validate()/ApplyDefaults() split follow unified_config.go's
// UnifiedBusinessConfig, with the crawl/process/sink policies replaced by
// project/runtime sections.
package config

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/factory"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/model"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/simulator"
	"github.com/nsm120/vle/value"
)

// Project is the parsed project file: the root of spec.md §6's object
// model. encoding/xml drives the decode directly against struct tags (no
// intermediate DOM) since every element here, including nested condition
// values, maps cleanly onto a fixed Go shape; the Value tree itself is the
// one part of the grammar that doesn't, and it keeps using value.UnmarshalXML
// via the captured inner XML of each <port>.
type Project struct {
	XMLName     xml.Name    `xml:"project"`
	Version     string      `xml:"version,attr"`
	Structures  Structures  `xml:"structures"`
	Dynamics    Dynamics    `xml:"dynamics"`
	Classes     Classes     `xml:"classes"`
	Experiment  Experiment  `xml:"experiment"`
	Conditions  Conditions  `xml:"conditions"`
	Views       Views       `xml:"views"`
	Observables Observables `xml:"observables"`
}

// Structures wraps the root model of the hierarchy.
type Structures struct {
	Model ModelXML `xml:"model"`
}

// ModelXML is one node of the structures hierarchy: either an atomic leaf
// (Type=="atomic") or a coupled node with Submodels and Connections, or a
// reference to a named Class template (Class!="").
type ModelXML struct {
	Name        string          `xml:"name,attr"`
	Type        string          `xml:"type,attr"`
	Class       string          `xml:"class,attr,omitempty"`
	InputPorts  []PortXML       `xml:"in>port"`
	OutputPorts []PortXML       `xml:"out>port"`
	Submodels   []ModelXML      `xml:"submodels>model"`
	Connections []ConnectionXML `xml:"connections>connection"`
}

// PortXML names one input or output port.
type PortXML struct {
	Name string `xml:"name,attr"`
}

// ConnectionXML is one edge of a coupled model's wiring, in VPZ style:
// Kind is one of "input", "internal", "output" (spec.md §3's three sets).
type ConnectionXML struct {
	Kind        string     `xml:"type,attr"`
	Origin      PortRefXML `xml:"origin"`
	Destination PortRefXML `xml:"destination"`
}

// PortRefXML names a (model,port) endpoint. Model is empty when the
// endpoint is the enclosing coupled model's own port.
type PortRefXML struct {
	Model string `xml:"model,attr,omitempty"`
	Port  string `xml:"port,attr"`
}

// Dynamics binds atomic model paths to the plugin library that implements
// their Dynamics (spec.md §6's "atomic-model-name -> plugin library name").
type Dynamics struct {
	Entries []DynamicEntry `xml:"dynamic"`
}

// DynamicEntry is one binding: the atomic Model's dotted path to the
// Library name the Model Factory (C7) looks up in a factory.Registry.
type DynamicEntry struct {
	Name    string `xml:"name,attr"`
	Library string `xml:"library,attr"`
	Model   string `xml:"model,attr"`
}

// Classes holds reusable coupled-model templates, keyed by name.
type Classes struct {
	Entries []ClassEntry `xml:"class"`
}

// ClassEntry is one named template, resolved at elaboration time before
// Simulators are bound (spec.md §4.5).
type ClassEntry struct {
	Name  string   `xml:"name,attr"`
	Model ModelXML `xml:"model"`
}

// Experiment carries the run's name, duration, begin time and seed.
type Experiment struct {
	Name     string  `xml:"name,attr"`
	Duration float64 `xml:"duration,attr"`
	Begin    float64 `xml:"begin,attr"`
	Seed     int64   `xml:"seed,attr"`
}

// Conditions holds per-model initialization key/value maps.
type Conditions struct {
	Entries []ConditionEntry `xml:"condition"`
}

// ConditionEntry is the named initialization bundle for one model.
type ConditionEntry struct {
	Model string           `xml:"model,attr"`
	Ports []ConditionValue `xml:"port"`
}

// ConditionValue captures one initialization key's raw Value XML payload
// (innerxml), decoded lazily via value.UnmarshalXML rather than through
// struct tags, since the Value grammar's per-kind element names don't map
// onto a single Go type (same reasoning as value/xml.go's own decoder).
type ConditionValue struct {
	Name string `xml:"name,attr"`
	Raw  string `xml:",innerxml"`
}

// Value decodes this condition's raw payload per spec.md §6's grammar.
func (cv ConditionValue) Value() (value.Value, error) {
	v, err := value.UnmarshalXML([]byte(cv.Raw))
	if err != nil {
		return value.Value{}, kernelerr.NewValueError(cv.Name, 0, fmt.Errorf("decoding condition port %q: %w", cv.Name, err))
	}
	return v, nil
}

// Views lists the named sampling views (spec.md §4.7).
type Views struct {
	Entries []ViewEntry `xml:"view"`
}

// ViewEntry is one view: Kind is "timed" or "event"; TimeStep is only
// meaningful for "timed". Output names the stream plugin library.
type ViewEntry struct {
	Name     string  `xml:"name,attr"`
	Kind     string  `xml:"type,attr"`
	TimeStep float64 `xml:"timestep,attr,omitempty"`
	Output   string  `xml:"output,attr"`
}

// Observables maps a named observable to the (port -> views) bindings that
// feed it, per spec.md §6.
type Observables struct {
	Entries []ObservableEntry `xml:"observable"`
}

// ObservableEntry names the model+port being observed and which views
// record it.
type ObservableEntry struct {
	Name  string            `xml:"name,attr"`
	Model string            `xml:"model,attr"`
	Ports []ObservablePort  `xml:"port"`
}

// ObservablePort is one observed port and the views it feeds.
type ObservablePort struct {
	Name  string   `xml:"name,attr"`
	Views []string `xml:"view"`
}

// Parse decodes a project file. encoding/xml.Unmarshal is sufficient here:
// unlike the Value grammar, every element in this document maps onto a
// fixed, tag-annotated Go shape.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, kernelerr.NewConfigError("", fmt.Errorf("parsing project file: %w", err))
	}
	return &p, nil
}

// Validate checks the project's structural invariants, delegating to one
// method per section following unified_config.go's Validate/validateX
// split.
func (p *Project) Validate() error {
	if p == nil {
		return kernelerr.NewConfigError("", fmt.Errorf("project cannot be nil"))
	}
	if err := p.validateStructures(); err != nil {
		return fmt.Errorf("structures validation failed: %w", err)
	}
	if err := p.validateDynamics(); err != nil {
		return fmt.Errorf("dynamics validation failed: %w", err)
	}
	if err := p.validateExperiment(); err != nil {
		return fmt.Errorf("experiment validation failed: %w", err)
	}
	if err := p.validateViews(); err != nil {
		return fmt.Errorf("views validation failed: %w", err)
	}
	return nil
}

func (p *Project) validateStructures() error {
	if p.Structures.Model.Name == "" {
		return kernelerr.NewConfigError("", fmt.Errorf("structures.model requires a name"))
	}
	return validateModelXML(p.Structures.Model.Name, &p.Structures.Model)
}

func validateModelXML(path string, m *ModelXML) error {
	if m.Type != "atomic" && m.Type != "coupled" && m.Class == "" {
		return kernelerr.NewConfigError(path, fmt.Errorf("model %q must declare type atomic|coupled or a class reference", path))
	}
	seen := make(map[string]struct{}, len(m.Submodels))
	for i := range m.Submodels {
		sub := &m.Submodels[i]
		if sub.Name == "" {
			return kernelerr.NewConfigError(path, fmt.Errorf("submodel of %q missing name", path))
		}
		if _, dup := seen[sub.Name]; dup {
			return kernelerr.NewConfigError(path, fmt.Errorf("duplicate submodel name %q under %q", sub.Name, path))
		}
		seen[sub.Name] = struct{}{}
		if err := validateModelXML(path+"."+sub.Name, sub); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) validateDynamics() error {
	for _, d := range p.Dynamics.Entries {
		if d.Model == "" {
			return kernelerr.NewConfigError("", fmt.Errorf("dynamics entry %q missing model attribute", d.Name))
		}
		if d.Library == "" {
			return kernelerr.NewConfigError(d.Model, fmt.Errorf("dynamics entry for %q missing library attribute", d.Model))
		}
	}
	return nil
}

func (p *Project) validateExperiment() error {
	if p.Experiment.Duration < 0 {
		return kernelerr.NewConfigError("", fmt.Errorf("experiment duration cannot be negative: %v", p.Experiment.Duration))
	}
	return nil
}

func (p *Project) validateViews() error {
	for _, v := range p.Views.Entries {
		if v.Kind != "timed" && v.Kind != "event" {
			return kernelerr.NewConfigError("", fmt.Errorf("view %q has unknown type %q", v.Name, v.Kind))
		}
		if v.Kind == "timed" && v.TimeStep <= 0 {
			return kernelerr.NewConfigError("", fmt.Errorf("timed view %q requires a positive timestep", v.Name))
		}
	}
	return nil
}

// ApplyDefaults fills in conventional defaults for fields the project file
// left unset, mirroring ApplyGlobalDefaults's nil/zero-guard style.
func (p *Project) ApplyDefaults() {
	if p == nil {
		return
	}
	if p.Experiment.Name == "" {
		p.Experiment.Name = "untitled"
	}
	if p.Experiment.Duration == 0 {
		p.Experiment.Duration = 100
	}
	for i := range p.Views.Entries {
		if p.Views.Entries[i].Kind == "" {
			p.Views.Entries[i].Kind = "timed"
		}
	}
}

// Elaboration is the Model Factory's (C7) output: an elaborated model tree
// plus the bound Simulators and Views ready to hand to a coordinator.New.
type Elaboration struct {
	Root       *model.CoupledModel
	Atomics    []*model.AtomicModel
	Simulators []*simulator.Simulator
	Views      []*observation.View
}

// Elaborate builds an Elaboration from p: it resolves class templates,
// walks the structures tree into a model.CoupledModel graph, binds every
// atomic model to a Dynamics instance via dyn (looked up by the matching
// Dynamics entry's library name), and wires views from Views+Observables
// via streams. Simulator IDs are assigned by sorted atomic-model path, per
// spec.md §9's arena-storage redesign.
func (p *Project) Elaborate(dyn *factory.Registry, streams *StreamRegistry) (*Elaboration, error) {
	classes := model.NewClasses()
	for _, ce := range p.Classes.Entries {
		tmplRoot, err := buildModel(ce.Model, classes)
		if err != nil {
			return nil, err
		}
		coupled, ok := tmplRoot.(*model.CoupledModel)
		if !ok {
			return nil, kernelerr.NewConfigError(ce.Name, fmt.Errorf("class %q must be a coupled model", ce.Name))
		}
		classes.Define(ce.Name, coupled)
	}

	rootAny, err := buildModel(p.Structures.Model, classes)
	if err != nil {
		return nil, err
	}
	root, ok := rootAny.(*model.CoupledModel)
	if !ok {
		return nil, kernelerr.NewConfigError(p.Structures.Model.Name, fmt.Errorf("structures.model must be coupled at the root"))
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}

	libByModel := make(map[string]string, len(p.Dynamics.Entries))
	for _, d := range p.Dynamics.Entries {
		libByModel[d.Model] = d.Library
	}

	var atomics []*model.AtomicModel
	collectAtomics(root, &atomics)
	sort.Slice(atomics, func(i, j int) bool { return atomicPath(atomics[i]) < atomicPath(atomics[j]) })

	sims := make([]*simulator.Simulator, 0, len(atomics))
	for i, am := range atomics {
		path := atomicPath(am)
		lib, ok := libByModel[path]
		if !ok {
			return nil, kernelerr.NewConfigError(path, fmt.Errorf("no dynamics binding for atomic model %q", path))
		}
		fn, err := dyn.Lookup(lib)
		if err != nil {
			return nil, err
		}
		id := event.SimulatorID(i)
		sim := simulator.New(id, path, nil)
		d, err := fn(sim)
		if err != nil {
			return nil, kernelerr.NewLoadError(lib, fmt.Errorf("constructing dynamics for %q: %w", path, err))
		}
		sim.Dynamics = d
		am.Simulator = id
		sims = append(sims, sim)
	}

	views, err := p.buildViews(streams)
	if err != nil {
		return nil, err
	}

	return &Elaboration{Root: root, Atomics: atomics, Simulators: sims, Views: views}, nil
}

func collectAtomics(m model.Model, out *[]*model.AtomicModel) {
	switch mm := m.(type) {
	case *model.AtomicModel:
		*out = append(*out, mm)
	case *model.CoupledModel:
		for _, child := range mm.Children() {
			collectAtomics(child, out)
		}
	}
}

func atomicPath(am *model.AtomicModel) string {
	names := []string{am.Name}
	for p := am.Parent; p != nil; p = p.Parent {
		names = append([]string{p.Name}, names...)
	}
	path := names[0]
	for _, n := range names[1:] {
		path += "." + n
	}
	return path
}

// buildModel walks one ModelXML node into a model.Model. A class reference
// is resolved via classes.Resolve: the instance reuses the resolved
// template's CoupledModel directly (renamed to the instance's own name),
// so every instantiation of one class, under the same parent or different
// parents, aliases that single CoupledModel and multiple instantiations
// are not supported — recorded as an open question resolved in DESIGN.md.
func buildModel(m ModelXML, classes *model.Classes) (model.Model, error) {
	if m.Class != "" {
		tmpl, err := classes.Resolve(m.Class)
		if err != nil {
			return nil, err
		}
		tmpl.Name = m.Name
		return tmpl, nil
	}
	switch m.Type {
	case "atomic":
		am := &model.AtomicModel{Name: m.Name}
		for _, p := range m.InputPorts {
			am.InputPorts = append(am.InputPorts, model.Port{Name: p.Name})
		}
		for _, p := range m.OutputPorts {
			am.OutputPort = append(am.OutputPort, model.Port{Name: p.Name})
		}
		return am, nil
	case "coupled":
		cm := model.NewCoupledModel(m.Name)
		for _, p := range m.InputPorts {
			cm.InputPorts = append(cm.InputPorts, model.Port{Name: p.Name})
		}
		for _, p := range m.OutputPorts {
			cm.OutputPort = append(cm.OutputPort, model.Port{Name: p.Name})
		}
		for _, sub := range m.Submodels {
			child, err := buildModel(sub, classes)
			if err != nil {
				return nil, err
			}
			if err := cm.AddChild(child); err != nil {
				return nil, err
			}
		}
		for _, conn := range m.Connections {
			kind, mc := translateConnectionKind(conn.Kind)
			if err := cm.Connect(kind, mc(conn)); err != nil {
				return nil, err
			}
		}
		return cm, nil
	default:
		return nil, kernelerr.NewConfigError(m.Name, fmt.Errorf("model %q has unknown type %q", m.Name, m.Type))
	}
}

func translateConnectionKind(kind string) (string, func(ConnectionXML) model.Connection) {
	toConn := func(c ConnectionXML) model.Connection {
		return model.Connection{
			SourceModel: c.Origin.Model, SourcePort: c.Origin.Port,
			TargetModel: c.Destination.Model, TargetPort: c.Destination.Port,
		}
	}
	switch kind {
	case "input":
		return "input-to-internal", toConn
	case "output":
		return "internal-to-output", toConn
	default:
		return "internal-to-internal", toConn
	}
}

func (p *Project) buildViews(streams *StreamRegistry) ([]*observation.View, error) {
	observedByView := make(map[string][]observation.ObservedPort)
	for _, ob := range p.Observables.Entries {
		for _, port := range ob.Ports {
			for _, viewName := range port.Views {
				observedByView[viewName] = append(observedByView[viewName],
					observation.ObservedPort{Model: ob.Model, Port: port.Name})
			}
		}
	}

	views := make([]*observation.View, 0, len(p.Views.Entries))
	for _, ve := range p.Views.Entries {
		stream, err := streams.Build(ve.Output)
		if err != nil {
			return nil, err
		}
		observed := observedByView[ve.Name]
		switch ve.Kind {
		case "event":
			views = append(views, observation.NewEventView(ve.Name, stream, observed...))
		default:
			views = append(views, observation.NewTimedView(ve.Name, value.Time(p.Experiment.Begin), value.Time(ve.TimeStep), stream, observed...))
		}
	}
	return views, nil
}
