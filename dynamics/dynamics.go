// Package dynamics defines the Dynamics contract (C5) every atomic model
// implements, decomposed into a single capability set per spec.md §9's
// redesign note rather than a deep DEVS -> DSDEVS -> DESS -> Statechart
// inheritance chain. Specializations (the numerical-integrator wrapper, the
// Statechart wrapper) are compositional adapters implementing the same
// interface, generalized from strategies.go's Fetcher/Processor/OutputSink
// interface trio and output/composite_sink.go's small-interface-plus-
// default-composition pattern.
package dynamics

import (
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/value"
)

// Dynamics is the eight-method contract of spec.md §4.4. timeAdvance must
// be a pure function of current state; every transition must be
// deterministic given its inputs.
type Dynamics interface {
	// Init returns the initial time-to-next-event (possibly
	// value.PositiveInfinity).
	Init(t value.Time) (value.Time, error)
	// Output returns events emitted immediately before an internal
	// transition fires.
	Output(t value.Time) ([]event.External, error)
	// InternalTransition mutates state after an internal event.
	InternalTransition(t value.Time) error
	// ExternalTransition mutates state on receipt of one or more
	// external events; elapsed is t minus the Simulator's lastTime.
	ExternalTransition(elapsed value.Time, t value.Time, events []event.External) error
	// ConfluentTransition handles an internal and external event
	// arriving at the same instant.
	ConfluentTransition(t value.Time, events []event.External) error
	// TimeAdvance returns sigma, the time to the next internal event
	// from the current state.
	TimeAdvance() (value.Time, error)
	// Observation produces a snapshot value for the requested
	// (view,port).
	Observation(view, port string) (value.Value, error)
	// Finish releases resources; called exactly once, at simulation
	// termination.
	Finish() error
}

// DefaultConfluent is an embeddable mixin supplying the default confluent
// policy from spec.md §4.4: externalTransition after internalTransition.
// A Dynamics embedding DefaultConfluent gets this behavior for free and may
// override ConfluentTransition directly to replace it.
type DefaultConfluent struct {
	Self interface {
		InternalTransition(t value.Time) error
		ExternalTransition(elapsed value.Time, t value.Time, events []event.External) error
	}
}

// ConfluentTransition implements the default internal-then-external policy.
// Self must be set to the embedding Dynamics by that Dynamics' own
// constructor (statechart.New does this; simulator.Simulator does not set
// it) since Go embedding does not give a mixin access to the outer type's
// overridden methods.
func (d DefaultConfluent) ConfluentTransition(t value.Time, events []event.External) error {
	if err := d.Self.InternalTransition(t); err != nil {
		return err
	}
	return d.Self.ExternalTransition(0, t, events)
}
