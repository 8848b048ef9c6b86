package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/nsm120/vle/calendar"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/model"
	"github.com/nsm120/vle/simulator"
	"github.com/nsm120/vle/telemetry/metrics"
	"github.com/nsm120/vle/value"
)

// boom is a Dynamics whose InternalTransition always fails, to drive
// coordinator.fail's error-reporting path.
type boom struct{}

func (boom) Init(t value.Time) (value.Time, error)         { return value.Time(0), nil }
func (boom) Output(t value.Time) ([]event.External, error) { return nil, nil }
func (boom) InternalTransition(t value.Time) error         { return errors.New("kaboom") }
func (boom) ExternalTransition(elapsed, t value.Time, evs []event.External) error {
	return nil
}
func (boom) ConfluentTransition(t value.Time, evs []event.External) error { return nil }
func (boom) TimeAdvance() (value.Time, error)                            { return value.PositiveInfinity, nil }
func (boom) Observation(view, port string) (value.Value, error)          { return value.Null(), nil }
func (boom) Finish() error                                               { return nil }

type recordedInc struct {
	delta  float64
	labels []string
}

type fakeCounter struct{ incs *[]recordedInc }

func (c fakeCounter) Inc(delta float64, labels ...string) {
	*c.incs = append(*c.incs, recordedInc{delta: delta, labels: labels})
}

// fakeMetricsProvider returns a fakeCounter from NewCounter and noop
// instruments everywhere else, since coordinator.fail only ever touches a
// Counter.
type fakeMetricsProvider struct{ incs []recordedInc }

func (p *fakeMetricsProvider) NewCounter(opts metrics.CounterOpts) metrics.Counter {
	return fakeCounter{incs: &p.incs}
}
func (p *fakeMetricsProvider) NewGauge(opts metrics.GaugeOpts) metrics.Gauge {
	return metrics.NewNoopProvider().NewGauge(opts)
}
func (p *fakeMetricsProvider) NewHistogram(opts metrics.HistogramOpts) metrics.Histogram {
	return metrics.NewNoopProvider().NewHistogram(opts)
}
func (p *fakeMetricsProvider) NewTimer(h metrics.HistogramOpts) func() metrics.Timer {
	return metrics.NewNoopProvider().NewTimer(h)
}
func (p *fakeMetricsProvider) Health(ctx context.Context) error { return nil }

type recordedLog struct{ err error }

type fakeLogger struct{ entries *[]recordedLog }

func (l fakeLogger) InfoCtx(ctx context.Context, msg string, attrs ...any)  {}
func (l fakeLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {}
func (l fakeLogger) LogKernelError(ctx context.Context, err error) {
	*l.entries = append(*l.entries, recordedLog{err: err})
}

func buildFailingModel(t *testing.T, provider metrics.Provider, logger fakeLogger) *Coordinator {
	t.Helper()
	root := model.NewCoupledModel("root")
	boomModel := &model.AtomicModel{Name: "boom"}
	if err := root.AddChild(boomModel); err != nil {
		t.Fatal(err)
	}
	if err := root.Validate(); err != nil {
		t.Fatal(err)
	}
	boomModel.Simulator = 0
	atomics := []*model.AtomicModel{boomModel}
	sims := []*simulator.Simulator{simulator.New(0, "root.boom", boom{})}

	cal := calendar.New()
	return New(sims, atomics, cal, nil, Options{
		EndTime: value.Time(10), Metrics: provider, Logger: logger,
	})
}

func TestCoordinatorFailureIncrementsLabeledCounterAndLogs(t *testing.T) {
	provider := &fakeMetricsProvider{}
	var entries []recordedLog
	logger := fakeLogger{entries: &entries}
	co := buildFailingModel(t, provider, logger)

	err := co.Run(context.Background())
	if err == nil {
		t.Fatal("expected InternalTransition failure to surface")
	}

	if len(provider.incs) != 1 {
		t.Fatalf("expected exactly one counter increment, got %d: %+v", len(provider.incs), provider.incs)
	}
	got := provider.incs[0]
	want := []string{"root.boom", "transition", "RuntimeError"}
	if len(got.labels) != len(want) {
		t.Fatalf("expected labels %v, got %v", want, got.labels)
	}
	for i := range want {
		if got.labels[i] != want[i] {
			t.Fatalf("expected labels %v, got %v", want, got.labels)
		}
	}

	if len(entries) != 1 {
		t.Fatalf("expected exactly one LogKernelError call, got %d", len(entries))
	}
	if entries[0].err == nil {
		t.Fatal("expected LogKernelError to receive the failing error")
	}
}
