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

// decayIntegrator is a DESS-style numerical integrator expressed as a DEVS
// atomic model: it advances a continuous state x (dx/dt = -k*x) by a fixed
// quantum step using forward Euler, the classic technique for hosting a
// continuous-system model inside a discrete-event kernel (spec.md §8
// scenario 2). step must be small relative to 1/k for the approximation to
// track the true exponential decay.
type decayIntegrator struct {
	k     float64
	step  value.Time
	x     float64
	trace []float64
}

func (d *decayIntegrator) Init(t value.Time) (value.Time, error) { return d.step, nil }
func (d *decayIntegrator) Output(t value.Time) ([]event.External, error) {
	return []event.External{{SourcePort: "x", Payload: value.Double(d.x)}}, nil
}
func (d *decayIntegrator) InternalTransition(t value.Time) error {
	d.x -= d.k * d.x * float64(d.step)
	d.trace = append(d.trace, d.x)
	return nil
}
func (d *decayIntegrator) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	return nil
}
func (d *decayIntegrator) ConfluentTransition(t value.Time, evs []event.External) error {
	return d.InternalTransition(t)
}
func (d *decayIntegrator) TimeAdvance() (value.Time, error) { return d.step, nil }
func (d *decayIntegrator) Observation(view, port string) (value.Value, error) {
	return value.Double(d.x), nil
}
func (d *decayIntegrator) Finish() error { return nil }

func buildDecayIntegrator(t *testing.T) (*Coordinator, *decayIntegrator, *observation.MemoryStream) {
	t.Helper()
	root := model.NewCoupledModel("root")
	intModel := &model.AtomicModel{Name: "decay", OutputPort: []model.Port{{Name: "x"}}}
	if err := root.AddChild(intModel); err != nil {
		t.Fatal(err)
	}
	if err := root.Validate(); err != nil {
		t.Fatal(err)
	}

	integ := &decayIntegrator{k: 0.5, step: value.Time(0.1), x: 100.0}
	intModel.Simulator = 0
	atomics := []*model.AtomicModel{intModel}
	sims := []*simulator.Simulator{simulator.New(0, "root.decay", integ)}

	mem := observation.NewMemoryStream()
	view := observation.NewTimedView("v1", value.Time(0), value.Time(1), mem,
		observation.ObservedPort{Model: "decay", Port: "x"})

	cal := calendar.New()
	co := New(sims, atomics, cal, []*observation.View{view}, Options{EndTime: value.Time(3)})
	return co, integ, mem
}

func TestDecayIntegratorApproachesZero(t *testing.T) {
	co, integ, _ := buildDecayIntegrator(t)
	if err := co.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(integ.trace) < 2 {
		t.Fatalf("expected multiple integration steps, got %d", len(integ.trace))
	}
	for i := 1; i < len(integ.trace); i++ {
		if integ.trace[i] >= integ.trace[i-1] {
			t.Fatalf("expected monotonic decay, trace[%d]=%v >= trace[%d]=%v", i, integ.trace[i], i-1, integ.trace[i-1])
		}
	}
	if integ.x >= 100.0 || integ.x <= 0 {
		t.Fatalf("expected decayed state strictly between 0 and initial value, got %v", integ.x)
	}
}

// TestDecayIntegratorObservedByTimedView confirms the view's cadence is
// {0, 1, 2, 3}, exactly spec.md §8's "begin, begin+timestep, ..., ≤endTime"
// property, even though the integrator's own internal events land at
// accumulated 0.1 steps (0.1, 0.2, ..., 0.9999999999999999, ...) that never
// land bit-exactly on an integer: the view's cadence is scheduled in the
// Event Table independent of whatever instant a Simulator happens to pop
// at, so it cannot be skipped by a near-miss.
func TestDecayIntegratorObservedByTimedView(t *testing.T) {
	co, _, mem := buildDecayIntegrator(t)
	if err := co.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	wantTimes := []value.Time{0, 1, 2, 3}
	if len(mem.Rows) != len(wantTimes) {
		t.Fatalf("expected %d observations at %v, got %d: %+v", len(wantTimes), wantTimes, len(mem.Rows), mem.Rows)
	}
	for i, row := range mem.Rows {
		if row.Time.Compare(wantTimes[i]) != 0 {
			t.Fatalf("observation %d: expected t=%v, got t=%v", i, wantTimes[i], row.Time)
		}
	}
}
