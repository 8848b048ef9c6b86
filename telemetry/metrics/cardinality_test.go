package metrics

import "testing"

func TestCardinalityBoundedKnownKeys(t *testing.T) {
	if !cardinalityBounded([]string{"phase"}) {
		t.Fatal("phase alone should be bounded")
	}
	if !cardinalityBounded([]string{"kind", "phase"}) {
		t.Fatal("kind+phase should be bounded")
	}
	if cardinalityBounded([]string{"model"}) {
		t.Fatal("model should be unbounded")
	}
	if cardinalityBounded([]string{"phase", "model"}) {
		t.Fatal("mixing in model should make the whole label set unbounded")
	}
	if cardinalityBounded(nil) {
		t.Fatal("an unknown/empty key set should be treated conservatively as unbounded")
	}
}

func TestPrometheusProviderSkipsCardinalityTrackingForBoundedLabels(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{CardinalityLimit: 1})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "bounded_total", Labels: []string{"phase", "kind"}}})
	for _, phase := range []string{"init", "step", "output", "transition", "observe"} {
		c.Inc(1, phase, "RuntimeError")
	}
	if tracked := len(p.cardinality["bounded_total"]); tracked != 0 {
		t.Fatalf("expected bounded labels to skip cardinality tracking entirely, tracked %d combos", tracked)
	}
}

func TestPrometheusProviderTracksCardinalityForUnboundedLabels(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{CardinalityLimit: 1})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "unbounded_total", Labels: []string{"model"}}})
	c.Inc(1, "root.a")
	c.Inc(1, "root.b")
	if tracked := len(p.cardinality["unbounded_total"]); tracked != 2 {
		t.Fatalf("expected 2 tracked combos for an unbounded label, got %d", tracked)
	}
}

func TestOTelProviderSkipsCardinalityTrackingForBoundedLabels(t *testing.T) {
	p := NewOTelProvider(OTelProviderOptions{CardinalityLimit: 1}).(*otelProvider)
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "bounded_total", Labels: []string{"phase", "kind"}}})
	for _, phase := range []string{"init", "step", "output", "transition", "observe"} {
		c.Inc(1, phase, "RuntimeError")
	}
	if tracked := len(p.cardinality["bounded_total"]); tracked != 0 {
		t.Fatalf("expected bounded labels to skip cardinality tracking entirely, tracked %d combos", tracked)
	}
}
