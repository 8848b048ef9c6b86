package config

import (
	"testing"

	"github.com/nsm120/vle/dynamics"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/factory"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/simulator"
	"github.com/nsm120/vle/value"
)

// testGenerator fires once per second, emitting an incrementing counter.
type testGenerator struct{ count int64 }

func (g *testGenerator) Init(t value.Time) (value.Time, error) { return value.Time(1), nil }
func (g *testGenerator) Output(t value.Time) ([]event.External, error) {
	return []event.External{{SourcePort: "out", Payload: value.Int(g.count)}}, nil
}
func (g *testGenerator) InternalTransition(t value.Time) error { g.count++; return nil }
func (g *testGenerator) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	return nil
}
func (g *testGenerator) ConfluentTransition(t value.Time, evs []event.External) error {
	return g.InternalTransition(t)
}
func (g *testGenerator) TimeAdvance() (value.Time, error) { return value.Time(1), nil }
func (g *testGenerator) Observation(view, port string) (value.Value, error) {
	return value.Int(g.count), nil
}
func (g *testGenerator) Finish() error { return nil }

// testSink records every external it receives.
type testSink struct{ received []value.Value }

func (s *testSink) Init(t value.Time) (value.Time, error) { return value.PositiveInfinity, nil }
func (s *testSink) Output(t value.Time) ([]event.External, error) { return nil, nil }
func (s *testSink) InternalTransition(t value.Time) error          { return nil }
func (s *testSink) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	for _, e := range evs {
		s.received = append(s.received, e.Payload)
	}
	return nil
}
func (s *testSink) ConfluentTransition(t value.Time, evs []event.External) error {
	return s.ExternalTransition(0, t, evs)
}
func (s *testSink) TimeAdvance() (value.Time, error) { return value.PositiveInfinity, nil }
func (s *testSink) Observation(view, port string) (value.Value, error) {
	if len(s.received) == 0 {
		return value.Null(), nil
	}
	return s.received[len(s.received)-1], nil
}
func (s *testSink) Finish() error { return nil }

func buildRegistries() (*factory.Registry, *StreamRegistry) {
	dyn := factory.NewRegistry()
	dyn.Register("generator", func(sim *simulator.Simulator) (dynamics.Dynamics, error) {
		return &testGenerator{}, nil
	})
	dyn.Register("sink", func(sim *simulator.Simulator) (dynamics.Dynamics, error) {
		return &testSink{}, nil
	})

	streams := NewStreamRegistry()
	streams.Register("memory", func() (observation.Stream, error) {
		return observation.NewMemoryStream(), nil
	})
	return dyn, streams
}

func TestElaborateBuildsModelTreeAndSimulators(t *testing.T) {
	p, err := Parse(samplePingPongXML())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dyn, streams := buildRegistries()

	elab, err := p.Elaborate(dyn, streams)
	if err != nil {
		t.Fatalf("Elaborate: %v", err)
	}
	if len(elab.Atomics) != 2 {
		t.Fatalf("expected 2 atomic models, got %d", len(elab.Atomics))
	}
	if len(elab.Simulators) != 2 {
		t.Fatalf("expected 2 simulators, got %d", len(elab.Simulators))
	}
	if len(elab.Views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(elab.Views))
	}
	for i, sim := range elab.Simulators {
		if int(sim.ID) != i {
			t.Fatalf("expected simulator %d to have arena index %d, got %d", i, i, sim.ID)
		}
		if sim.Dynamics == nil {
			t.Fatalf("simulator %d has no bound dynamics", i)
		}
	}
}

func TestElaborateFailsOnMissingDynamicsBinding(t *testing.T) {
	p, err := Parse(samplePingPongXML())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p.Dynamics.Entries = nil
	dyn, streams := buildRegistries()
	if _, err := p.Elaborate(dyn, streams); err == nil {
		t.Fatal("expected Elaborate to fail when a model has no dynamics binding")
	}
}

func TestElaborateFailsOnUnregisteredStream(t *testing.T) {
	p, err := Parse(samplePingPongXML())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	dyn, streams := buildRegistries()
	p.Views.Entries[0].Output = "unregistered"
	if _, err := p.Elaborate(dyn, streams); err == nil {
		t.Fatal("expected Elaborate to fail on an unregistered stream plugin")
	}
}
