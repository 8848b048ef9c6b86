// Package statechart implements the Statechart Extension (C10): an FSA
// layered on dynamics.Dynamics (spec.md §4.6). A *Statechart implements
// dynamics.Dynamics directly, as a compositional adapter rather than an
// inheritance layer, per spec.md §9's redesign note. The IDLE/PROCESSING/
// SEND phase machine, declaration-order tie-breaking, and sigma decrement
// across interruptions are grounded on original_source
// vle/extension/fsa/Statechart.cpp's checkGuards/setSigma/internalTransition
// trio, restated as an explicit phase enum and pending-event queue instead
// of the C++ original's exception-free-but-pointer-heavy event list
// bookkeeping (spec.md §4.6's own redesign note rules out control-flow
// exceptions; there were none here to replace, but the pointer/iterator
// bookkeeping is replaced the same way: a plain slice queue).
package statechart

import (
	"fmt"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/value"
)

// StateID tags a state. Declaration order among transitions sharing a
// source state is the registration order of AddTransition, not of StateID.
type StateID int

// Phase is the statechart's own execution phase, distinct from any
// Coordinator-level phase.
type Phase int

const (
	Idle Phase = iota
	Processing
	Send
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Send:
		return "send"
	default:
		return "unknown"
	}
}

// Action runs a side effect at time t: an entry-, exit-, during-, or
// transition-action. Actions close over the enclosing model's own state;
// the Statechart itself holds none beyond its phase machine.
type Action func(t value.Time)

// Guard decides whether a transition may fire at t.
type Guard func(t value.Time) bool

// OutputFunc builds the events a firing transition emits; buffered during
// PROCESSING and returned by Output once the phase moves to SEND.
type OutputFunc func(t value.Time) []event.External

// State declares one state's optional entry/exit/during behavior.
type State struct {
	ID     StateID
	Name   string
	Entry  Action
	Exit   Action
	During Action
	// DuringPeriod schedules During to run on a fixed period while this
	// state is active, composing with After/When timeouts (the lower of
	// the two wins), per original_source's during-activity supplement
	// (vle/extension/fsa/Statechart.cpp's mTimeStep/processActivities).
	// Zero means no during-activity.
	DuringPeriod value.Time
	// OnEvent holds event-in-state actions: a port name whose arrival in
	// this state runs the action without a state change, tried only when
	// no transition out of this state matches the event (spec.md §4.6).
	OnEvent map[string]Action
}

// Transition declares one edge. Event, After, and When are mutually
// exclusive selectors for what drives the transition: an input port
// event, a duration relative to state entry, or an absolute time. A
// transition with none of the three and no Guard is automatic and fires
// immediately (sigma=0); one with only a Guard is rechecked on every
// internal transition of its source state.
type Transition struct {
	From, To StateID
	Event    string
	After    *value.Time
	When     *value.Time
	Guard    Guard
	Action   Action
	Output   OutputFunc
}

func (tr Transition) isTimeless() bool {
	return tr.Event == "" && tr.After == nil && tr.When == nil
}

// Statechart is a Dynamics implementation compiled from a fixed set of
// states and transitions. Build it with New, AddState, SetInitial, and
// AddTransition, then Validate before handing it to a Simulator.
type Statechart struct {
	dynamics.DefaultConfluent

	states      map[StateID]*State
	transitions []Transition // declaration order
	initial     StateID
	hasInitial  bool

	// Observe is an optional hook for Observation; if nil, Observation
	// returns the current state's Name for port "state" and value.Null()
	// otherwise.
	Observe func(current StateID, view, port string) (value.Value, error)
	// OnFinish is an optional hook run once by Finish.
	OnFinish Action
	// InitialOutput, if set, is buffered for the first Output call so the
	// initial state's entry can emit events the way every other state's
	// entry does via its incoming Transition.Output (spec.md §8's
	// ping-pong scenario: "entry(A) outputs inA" applies at t=0 too,
	// where no transition fires to carry the buffer).
	InitialOutput OutputFunc

	current  StateID
	phase    Phase
	sigma    value.Time
	lastTime value.Time

	pending []event.External

	autoCandidate    *Transition
	timeoutCandidate *Transition
	firing           *Transition
	bufferedOutput   []event.External
}

// New constructs an empty Statechart.
func New() *Statechart {
	s := &Statechart{states: make(map[StateID]*State)}
	s.Self = s
	return s
}

// AddState registers a state. Re-adding the same ID overwrites it.
func (s *Statechart) AddState(st State) {
	cp := st
	s.states[st.ID] = &cp
}

// SetInitial designates the initial state; it must already be added via
// AddState.
func (s *Statechart) SetInitial(id StateID) error {
	if _, ok := s.states[id]; !ok {
		return fmt.Errorf("statechart: initial state %d not registered", id)
	}
	s.initial = id
	s.hasInitial = true
	return nil
}

// AddTransition appends a transition. Declaration order determines the
// tie-break among transitions sharing From and a matching selector.
func (s *Statechart) AddTransition(tr Transition) {
	s.transitions = append(s.transitions, tr)
}

// Validate checks every transition references registered states and that
// an initial state is set, returning a kernelerr ConfigError describing
// the first problem found.
func (s *Statechart) Validate() error {
	if !s.hasInitial {
		return kernelerr.NewConfigError("", fmt.Errorf("statechart: no initial state set"))
	}
	for i, tr := range s.transitions {
		if _, ok := s.states[tr.From]; !ok {
			return kernelerr.NewConfigError("", fmt.Errorf("statechart: transition %d: unknown source state %d", i, tr.From))
		}
		if _, ok := s.states[tr.To]; !ok {
			return kernelerr.NewConfigError("", fmt.Errorf("statechart: transition %d: unknown target state %d", i, tr.To))
		}
	}
	return nil
}

// Current reports the active state, for tests and diagnostics.
func (s *Statechart) Current() StateID { return s.current }

// CurrentPhase reports the active phase, for tests and diagnostics.
func (s *Statechart) CurrentPhase() Phase { return s.phase }

func (s *Statechart) transitionsFrom(id StateID) []Transition {
	out := make([]Transition, 0, 4)
	for _, tr := range s.transitions {
		if tr.From == id {
			out = append(out, tr)
		}
	}
	return out
}

func (s *Statechart) findEventTransition(id StateID, port string) *Transition {
	candidates := s.transitionsFrom(id)
	for i := range candidates {
		if candidates[i].Event == port {
			return &candidates[i]
		}
	}
	return nil
}

// recompute scans the transitions out of the current state and picks, in
// declaration order, the first automatic/guard-gated-automatic transition
// (sigma=0 immediately), or failing that the minimum of the current
// state's during-period and every After/When transition's remaining
// duration, per Statechart.cpp's checkGuards/setSigma split.
func (s *Statechart) recompute(t value.Time) (sigma value.Time, auto *Transition, timeout *Transition) {
	candidates := s.transitionsFrom(s.current)
	for i := range candidates {
		tr := &candidates[i]
		if !tr.isTimeless() {
			continue
		}
		if tr.Guard == nil || tr.Guard(t) {
			return 0, tr, nil
		}
	}

	best := value.PositiveInfinity
	if st := s.states[s.current]; st != nil && st.DuringPeriod > 0 {
		best = st.DuringPeriod
	}
	var bestTr *Transition
	for i := range candidates {
		tr := &candidates[i]
		if tr.Event != "" {
			continue
		}
		var dur value.Time
		switch {
		case tr.After != nil:
			dur = *tr.After
		case tr.When != nil:
			dur = tr.When.Sub(t)
			if dur < 0 {
				continue
			}
		default:
			continue
		}
		if dur.Compare(best) < 0 {
			best = dur
			bestTr = tr
		}
	}
	return best, nil, bestTr
}

func (s *Statechart) recomputeAndStore(t value.Time) {
	sigma, auto, timeout := s.recompute(t)
	s.autoCandidate = auto
	if auto != nil {
		s.timeoutCandidate = nil
		s.sigma = 0
		return
	}
	s.timeoutCandidate = timeout
	s.sigma = sigma
}

func (s *Statechart) fire(tr *Transition, t value.Time) {
	if st := s.states[tr.From]; st != nil && st.Exit != nil {
		st.Exit(t)
	}
	if tr.Action != nil {
		tr.Action(t)
	}
	s.bufferedOutput = nil
	if tr.Output != nil {
		s.bufferedOutput = tr.Output(t)
	}
	s.firing = tr
}

func (s *Statechart) enterState(id StateID, t value.Time) {
	s.current = id
	if st := s.states[id]; st != nil && st.Entry != nil {
		st.Entry(t)
	}
}

// Init enters the initial state and schedules the first internal event.
// If InitialOutput is set, the phase starts at SEND so the next Output
// call emits it before the first internal transition recomputes sigma.
func (s *Statechart) Init(t value.Time) (value.Time, error) {
	if !s.hasInitial {
		return value.PositiveInfinity, kernelerr.NewInvariantViolation("", "init", float64(t), fmt.Errorf("statechart: no initial state set"))
	}
	s.enterState(s.initial, t)
	s.lastTime = t
	if s.InitialOutput != nil {
		s.bufferedOutput = s.InitialOutput(t)
		s.firing = nil
		s.phase = Send
		return 0, nil
	}
	s.phase = Idle
	s.recomputeAndStore(t)
	return s.sigma, nil
}

// Output returns the buffered events of the transition chosen this cycle,
// once the phase has reached SEND; nil otherwise.
func (s *Statechart) Output(t value.Time) ([]event.External, error) {
	if s.phase != Send {
		return nil, nil
	}
	return s.bufferedOutput, nil
}

// ExternalTransition decrements sigma by elapsed (clamped at zero) and
// enqueues the incoming events for PROCESSING, per Statechart.cpp's
// updateSigma plus mToProcessEvents bookkeeping.
func (s *Statechart) ExternalTransition(elapsed, t value.Time, events []event.External) error {
	if elapsed > 0 {
		remaining := s.sigma - elapsed
		if remaining < 0 {
			remaining = 0
		}
		s.sigma = remaining
	}
	s.pending = append(s.pending, events...)
	s.lastTime = t
	if s.phase != Send {
		s.phase = Processing
	}
	return nil
}

// TimeAdvance returns sigma while IDLE (waiting for the next timeout or
// external event) and zero otherwise (PROCESSING/SEND resolve in zero
// time, per spec.md §4.6).
func (s *Statechart) TimeAdvance() (value.Time, error) {
	if s.phase == Idle {
		return s.sigma, nil
	}
	return 0, nil
}

// InternalTransition advances the phase machine one step: in IDLE it fires
// whichever automatic/guard or timeout transition matched, or runs the
// current state's during-activity; in PROCESSING it consumes the next
// queued external event; in SEND it completes the chosen transition by
// entering its target state.
func (s *Statechart) InternalTransition(t value.Time) error {
	switch s.phase {
	case Idle:
		switch {
		case s.autoCandidate != nil:
			tr := s.autoCandidate
			if tr.Guard == nil || tr.Guard(t) {
				s.fire(tr, t)
				s.phase = Send
			} else {
				s.recomputeAndStore(t)
			}
		case s.timeoutCandidate != nil:
			tr := s.timeoutCandidate
			if tr.Guard == nil || tr.Guard(t) {
				s.fire(tr, t)
				s.phase = Send
			} else {
				s.recomputeAndStore(t)
			}
		default:
			if st := s.states[s.current]; st != nil && st.During != nil {
				st.During(t)
			}
			s.recomputeAndStore(t)
		}
	case Processing:
		if len(s.pending) == 0 {
			s.phase = Idle
			s.recomputeAndStore(t)
			break
		}
		ev := s.pending[0]
		s.pending = s.pending[1:]
		tr := s.findEventTransition(s.current, ev.TargetPort)
		if tr != nil && (tr.Guard == nil || tr.Guard(t)) {
			s.fire(tr, t)
			s.phase = Send
			break
		}
		if st := s.states[s.current]; st != nil {
			if action, ok := st.OnEvent[ev.TargetPort]; ok {
				action(t)
			}
		}
		if len(s.pending) == 0 {
			s.phase = Idle
			s.recomputeAndStore(t)
		}
	case Send:
		tr := s.firing
		s.firing = nil
		if tr != nil {
			s.enterState(tr.To, t)
		}
		if len(s.pending) > 0 {
			s.phase = Processing
		} else {
			s.phase = Idle
			s.recomputeAndStore(t)
		}
	}
	s.lastTime = t
	return nil
}

// Observation reports Observe(current, view, port) if set, otherwise the
// current state's Name for port "state" and value.Null() for any other
// port.
func (s *Statechart) Observation(view, port string) (value.Value, error) {
	if s.Observe != nil {
		return s.Observe(s.current, view, port)
	}
	if port == "state" {
		if st := s.states[s.current]; st != nil {
			return value.String(st.Name), nil
		}
	}
	return value.Null(), nil
}

// Finish runs OnFinish, if set.
func (s *Statechart) Finish() error {
	if s.OnFinish != nil {
		s.OnFinish(s.lastTime)
	}
	return nil
}
