// Package simulator implements the per-atomic-model Simulator wrapper (C4):
// it owns a Dynamics instance and tracks lastTime and sigma. Simulators are
// addressed by arena index (event.SimulatorID) from the coordinator rather
// than by back-pointer, per spec.md §9; this package mirrors the teacher's
// entry-by-key-in-owner-map ownership style from
// internal/resources/manager.go, adapted to index-based ownership.
package simulator

import (
	"fmt"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/value"
)

// Simulator wraps one AtomicModel's Dynamics instance.
type Simulator struct {
	ID        event.SimulatorID
	ModelPath string
	Dynamics  dynamics.Dynamics

	lastTime value.Time
	sigma    value.Time
}

// New constructs a Simulator bound to d, with lastTime set to
// value.NegativeInfinity (no transition has happened yet).
func New(id event.SimulatorID, modelPath string, d dynamics.Dynamics) *Simulator {
	return &Simulator{ID: id, ModelPath: modelPath, Dynamics: d, lastTime: value.NegativeInfinity, sigma: value.PositiveInfinity}
}

// LastTime returns the time of this Simulator's most recent transition.
func (s *Simulator) LastTime() value.Time { return s.lastTime }

// Sigma returns the remaining time until this Simulator's next internal
// event, or value.PositiveInfinity if none is scheduled.
func (s *Simulator) Sigma() value.Time { return s.sigma }

// Init calls Dynamics.Init and records the resulting sigma. Returns the
// absolute time of the first scheduled internal event (t + sigma), or
// value.PositiveInfinity if sigma is infinite.
func (s *Simulator) Init(t value.Time) (value.Time, error) {
	sigma, err := s.Dynamics.Init(t)
	if err != nil {
		return value.PositiveInfinity, kernelerr.NewRuntimeError(s.ModelPath, "init", float64(t), err)
	}
	if sigma < 0 {
		return value.PositiveInfinity, kernelerr.NewInvariantViolation(s.ModelPath, "init", float64(t), fmt.Errorf("negative time advance %v", sigma))
	}
	s.lastTime = t
	s.sigma = sigma
	if sigma.IsInfinite() {
		return value.PositiveInfinity, nil
	}
	return t.Add(sigma), nil
}

// Output calls Dynamics.Output for the output phase of a bag this
// Simulator has a pending internal event in.
func (s *Simulator) Output(t value.Time) ([]event.External, error) {
	outs, err := s.Dynamics.Output(t)
	if err != nil {
		return nil, kernelerr.NewRuntimeError(s.ModelPath, "output", float64(t), err)
	}
	return outs, nil
}

// classification of a bag's contents for this Simulator, per spec.md §4.1.
type classification int

const (
	classInternal classification = iota
	classExternal
	classConfluent
)

func classify(b event.Bag) classification {
	switch {
	case b.IsConfluent():
		return classConfluent
	case b.Internal != nil:
		return classInternal
	default:
		return classExternal
	}
}

// Transition dispatches exactly one of δint/δext/δconf per spec.md §8's
// universal invariant, then reschedules via TimeAdvance. It returns the new
// absolute time of this Simulator's next internal event (or
// value.PositiveInfinity), for the caller to re-register with the calendar.
func (s *Simulator) Transition(t value.Time, bag event.Bag) (value.Time, error) {
	elapsed := t.Sub(s.lastTime)
	var err error
	switch classify(bag) {
	case classInternal:
		err = s.Dynamics.InternalTransition(t)
	case classExternal:
		err = s.Dynamics.ExternalTransition(elapsed, t, bag.Externals)
	case classConfluent:
		err = s.Dynamics.ConfluentTransition(t, bag.Externals)
	}
	if err != nil {
		return value.PositiveInfinity, kernelerr.NewRuntimeError(s.ModelPath, "transition", float64(t), err)
	}

	sigma, err := s.Dynamics.TimeAdvance()
	if err != nil {
		return value.PositiveInfinity, kernelerr.NewRuntimeError(s.ModelPath, "timeAdvance", float64(t), err)
	}
	if sigma < 0 {
		return value.PositiveInfinity, kernelerr.NewInvariantViolation(s.ModelPath, "timeAdvance", float64(t), fmt.Errorf("negative time advance %v", sigma))
	}
	s.lastTime = t
	s.sigma = sigma
	if sigma.IsInfinite() {
		return value.PositiveInfinity, nil
	}
	return t.Add(sigma), nil
}

// Observation calls Dynamics.Observation, wrapping failures as
// kernelerr.Value errors (a value-tree lookup mismatch at the Dynamics
// level surfaces the same way a type-mismatched port read would).
func (s *Simulator) Observation(t value.Time, view, port string) (value.Value, error) {
	v, err := s.Dynamics.Observation(view, port)
	if err != nil {
		return value.Value{}, kernelerr.NewValueError(s.ModelPath, float64(t), err)
	}
	return v, nil
}

// Finish calls Dynamics.Finish exactly once at simulation termination.
func (s *Simulator) Finish() error {
	if err := s.Dynamics.Finish(); err != nil {
		return kernelerr.NewRuntimeError(s.ModelPath, "finish", float64(s.lastTime), err)
	}
	return nil
}
