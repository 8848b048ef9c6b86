// Package metrics provides the Provider abstraction the simulation kernel
// uses to expose calendar depth, simulator counts, and view throughput,
// grounded on telemetry/metrics/interfaces.go (Prometheus/OTel-backed,
// pluggable, no-op default).
package metrics

import "context"

// Counter represents a monotonically increasing value.
type Counter interface {
	Inc(delta float64, labels ...string)
}

// Gauge represents a value that can go up or down.
type Gauge interface {
	Set(value float64, labels ...string)
	Add(delta float64, labels ...string)
}

// Histogram records observations into buckets and tracks count + sum.
type Histogram interface {
	Observe(value float64, labels ...string)
}

// Timer is a helper handle for measuring latency.
type Timer interface {
	ObserveDuration(labels ...string)
}

// Provider is the top-level metrics provider abstraction.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(h HistogramOpts) func() Timer
	Health(ctx context.Context) error
}

// CommonOpts is embedded into each metric option struct.
type CommonOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Labels    []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }

type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// boundedLabelKeys names label keys whose value domain the kernel knows in
// advance to be small and closed: phase is one of the handful of
// Coordinator phases (spec.md §4.2), kind is one of kernelerr's five error
// Kinds. model (an AtomicModel path) has no such bound — a deeply nested
// model tree can mint thousands of distinct paths, which is exactly the
// unbounded dimension the cardinality limiter exists to catch, so it is
// deliberately left out of this set.
var boundedLabelKeys = map[string]bool{"phase": true, "kind": true}

// cardinalityBounded reports whether every entry in keys is a label the
// kernel already knows is closed, so a provider's cardinality limiter can
// skip tracking it outright instead of spending a map slot and eventually
// emitting a false warning. An empty/unknown key set is conservatively
// treated as unbounded.
func cardinalityBounded(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !boundedLabelKeys[k] {
			return false
		}
	}
	return true
}

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}
type noopTimer struct{}

// NewNoopProvider returns a provider that discards every observation.
func NewNoopProvider() Provider { return &noopProvider{} }

func (p *noopProvider) NewCounter(opts CounterOpts) Counter       { return noopCounter{} }
func (p *noopProvider) NewGauge(opts GaugeOpts) Gauge             { return noopGauge{} }
func (p *noopProvider) NewHistogram(opts HistogramOpts) Histogram { return noopHistogram{} }
func (p *noopProvider) NewTimer(h HistogramOpts) func() Timer {
	return func() Timer { return noopTimer{} }
}
func (p *noopProvider) Health(ctx context.Context) error { return nil }

func (noopCounter) Inc(delta float64, labels ...string)       {}
func (noopGauge) Set(value float64, labels ...string)         {}
func (noopGauge) Add(delta float64, labels ...string)         {}
func (noopHistogram) Observe(value float64, labels ...string) {}
func (noopTimer) ObserveDuration(labels ...string)            {}
