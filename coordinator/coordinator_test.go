package coordinator

import (
	"context"
	"testing"

	"github.com/nsm120/vle/calendar"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/model"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/simulator"
	"github.com/nsm120/vle/value"
)

// generator fires every period, emitting an incrementing counter on "out".
type generator struct {
	period value.Time
	count  int64
}

func (g *generator) Init(t value.Time) (value.Time, error) { return g.period, nil }
func (g *generator) Output(t value.Time) ([]event.External, error) {
	return []event.External{{SourcePort: "out", Payload: value.Int(g.count)}}, nil
}
func (g *generator) InternalTransition(t value.Time) error { g.count++; return nil }
func (g *generator) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	return nil
}
func (g *generator) ConfluentTransition(t value.Time, evs []event.External) error {
	return g.InternalTransition(t)
}
func (g *generator) TimeAdvance() (value.Time, error)           { return g.period, nil }
func (g *generator) Observation(view, port string) (value.Value, error) {
	return value.Int(g.count), nil
}
func (g *generator) Finish() error { return nil }

// sink records every external it receives and never schedules itself.
type sink struct {
	received []value.Value
}

func (s *sink) Init(t value.Time) (value.Time, error) { return value.PositiveInfinity, nil }
func (s *sink) Output(t value.Time) ([]event.External, error) { return nil, nil }
func (s *sink) InternalTransition(t value.Time) error          { return nil }
func (s *sink) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	for _, e := range evs {
		s.received = append(s.received, e.Payload)
	}
	return nil
}
func (s *sink) ConfluentTransition(t value.Time, evs []event.External) error {
	return s.ExternalTransition(0, t, evs)
}
func (s *sink) TimeAdvance() (value.Time, error) { return value.PositiveInfinity, nil }
func (s *sink) Observation(view, port string) (value.Value, error) {
	if len(s.received) == 0 {
		return value.Null(), nil
	}
	return s.received[len(s.received)-1], nil
}
func (s *sink) Finish() error { return nil }

func buildGeneratorSink(t *testing.T) (*Coordinator, *sink, *observation.MemoryStream) {
	t.Helper()
	root := model.NewCoupledModel("root")
	genModel := &model.AtomicModel{Name: "gen", OutputPort: []model.Port{{Name: "out"}}}
	sinkModel := &model.AtomicModel{Name: "sink", InputPorts: []model.Port{{Name: "in"}}}
	if err := root.AddChild(genModel); err != nil {
		t.Fatal(err)
	}
	if err := root.AddChild(sinkModel); err != nil {
		t.Fatal(err)
	}
	if err := root.Connect("internal-to-internal", model.Connection{
		SourceModel: "gen", SourcePort: "out", TargetModel: "sink", TargetPort: "in",
	}); err != nil {
		t.Fatal(err)
	}
	if err := root.Validate(); err != nil {
		t.Fatal(err)
	}

	gen := &generator{period: value.Time(1)}
	snk := &sink{}
	genModel.Simulator = 0
	sinkModel.Simulator = 1
	atomics := []*model.AtomicModel{genModel, sinkModel}
	sims := []*simulator.Simulator{
		simulator.New(0, "root.gen", gen),
		simulator.New(1, "root.sink", snk),
	}

	mem := observation.NewMemoryStream()
	view := observation.NewTimedView("v1", value.Time(0), value.Time(1), mem,
		observation.ObservedPort{Model: "sink", Port: "in"})

	cal := calendar.New()
	co := New(sims, atomics, cal, []*observation.View{view}, Options{EndTime: value.Time(5)})
	return co, snk, mem
}

func TestCoordinatorRoutesOutputToSink(t *testing.T) {
	co, snk, _ := buildGeneratorSink(t)
	if err := co.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(snk.received) == 0 {
		t.Fatal("expected sink to receive at least one routed external")
	}
	if co.CurrentPhase() != Finished {
		t.Fatalf("expected Finished phase, got %v", co.CurrentPhase())
	}
}

func TestCoordinatorObservesTimedView(t *testing.T) {
	co, _, mem := buildGeneratorSink(t)
	if err := co.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mem.Rows) == 0 {
		t.Fatal("expected timed view to record observations")
	}
}

func TestCoordinatorStepBeforeInitErrors(t *testing.T) {
	co, _, _ := buildGeneratorSink(t)
	if _, err := co.Step(context.Background()); err == nil {
		t.Fatal("expected error stepping before Init")
	}
}
