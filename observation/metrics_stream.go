package observation

import (
	"github.com/nsm120/vle/telemetry/metrics"
	"github.com/nsm120/vle/value"
)

// MetricsStream forwards every observation of a numeric Value as a
// telemetry/metrics.Gauge sample, so a running simulation's views are
// scrapeable the same way the reference stack exposes business metrics
// (spec.md §4.7 [DOMAIN]).
type MetricsStream struct {
	provider metrics.Provider
	gauges   map[string]metrics.Gauge
	viewName string
}

// NewMetricsStream constructs a MetricsStream backed by provider.
func NewMetricsStream(provider metrics.Provider) *MetricsStream {
	return &MetricsStream{provider: provider, gauges: make(map[string]metrics.Gauge)}
}

func (m *MetricsStream) Open(viewName string, startTime value.Time) error {
	m.viewName = viewName
	return nil
}

func (m *MetricsStream) Write(t value.Time, model, port string, v value.Value) error {
	var f float64
	switch v.Kind() {
	case value.KindInt:
		i, _ := v.Int()
		f = float64(i)
	case value.KindDouble:
		f, _ = v.Double()
	case value.KindBool:
		b, _ := v.Bool()
		if b {
			f = 1
		}
	default:
		return nil // non-numeric observations are not forwarded to metrics
	}
	key := model + "/" + port
	g, ok := m.gauges[key]
	if !ok {
		g = m.provider.NewGauge(metrics.GaugeOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "vle", Subsystem: "observation", Name: "port_value",
			Help:   "Last observed value for a (view,model,port) tuple",
			Labels: []string{"view", "model", "port"},
		}})
		m.gauges[key] = g
	}
	g.Set(f, m.viewName, model, port)
	return nil
}

func (m *MetricsStream) Close(endTime value.Time) error { return nil }
