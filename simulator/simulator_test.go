package simulator

import (
	"testing"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/value"
)

// fakeDynamics is a minimal test double recording which transition fired.
type fakeDynamics struct {
	dynamics.DefaultConfluent
	initSigma  value.Time
	taSigma    value.Time
	lastCalled string
	failNext   error
}

func newFake() *fakeDynamics {
	f := &fakeDynamics{initSigma: value.Time(1), taSigma: value.Time(1)}
	f.Self = f
	return f
}

func (f *fakeDynamics) Init(t value.Time) (value.Time, error) { return f.initSigma, f.failNext }
func (f *fakeDynamics) Output(t value.Time) ([]event.External, error) {
	return []event.External{{Time: t, TargetPort: "p", Payload: value.Int(42)}}, nil
}
func (f *fakeDynamics) InternalTransition(t value.Time) error {
	f.lastCalled = "internal"
	return f.failNext
}
func (f *fakeDynamics) ExternalTransition(elapsed, t value.Time, events []event.External) error {
	f.lastCalled = "external"
	return f.failNext
}
func (f *fakeDynamics) TimeAdvance() (value.Time, error)         { return f.taSigma, f.failNext }
func (f *fakeDynamics) Observation(view, port string) (value.Value, error) {
	return value.Int(42), nil
}
func (f *fakeDynamics) Finish() error { return f.failNext }

func TestSimulatorInternalTransitionDispatch(t *testing.T) {
	f := newFake()
	s := New(0, "m", f)
	if _, err := s.Init(0); err != nil {
		t.Fatal(err)
	}
	next, err := s.Transition(value.Time(1), event.Bag{Internal: &event.Internal{Time: 1, Target: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastCalled != "internal" {
		t.Fatalf("expected internal transition, got %q", f.lastCalled)
	}
	if next != value.Time(2) {
		t.Fatalf("expected next internal at t=2, got %v", next)
	}
}

func TestSimulatorExternalTransitionDispatch(t *testing.T) {
	f := newFake()
	s := New(0, "m", f)
	_, _ = s.Init(0)
	ext := event.External{Time: 1, Target: 0, TargetPort: "in"}
	_, err := s.Transition(value.Time(1), event.Bag{Externals: []event.External{ext}})
	if err != nil {
		t.Fatal(err)
	}
	if f.lastCalled != "external" {
		t.Fatalf("expected external transition, got %q", f.lastCalled)
	}
}

func TestSimulatorConfluentDispatchCallsInternalThenExternal(t *testing.T) {
	f := newFake()
	s := New(0, "m", f)
	_, _ = s.Init(0)
	ext := event.External{Time: 5, Target: 0, TargetPort: "in"}
	bag := event.Bag{Internal: &event.Internal{Time: 5, Target: 0}, Externals: []event.External{ext}}
	if !bag.IsConfluent() {
		t.Fatalf("bag should be confluent")
	}
	_, err := s.Transition(value.Time(5), bag)
	if err != nil {
		t.Fatal(err)
	}
	// DefaultConfluent calls InternalTransition then ExternalTransition;
	// the fake records only the last call, which must be "external".
	if f.lastCalled != "external" {
		t.Fatalf("expected confluent to end on external transition, got %q", f.lastCalled)
	}
}

func TestSimulatorNegativeTimeAdvanceIsInvariantViolation(t *testing.T) {
	f := newFake()
	f.taSigma = value.Time(-1)
	s := New(0, "m", f)
	_, _ = s.Init(0)
	_, err := s.Transition(value.Time(1), event.Bag{Internal: &event.Internal{Time: 1, Target: 0}})
	if err == nil {
		t.Fatalf("expected invariant violation for negative sigma")
	}
}
