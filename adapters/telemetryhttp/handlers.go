// Package telemetryhttp exposes a Kernel's health and metrics over HTTP.
// Grounded on the teacher's telemetryhttp handlers (health/readiness/metrics
// endpoints backed by an engine), repointed at vle.Kernel's HealthSnapshot
// and the new telemetry/health.Snapshot{Overall, Results, At} shape.
package telemetryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nsm120/vle/telemetry/health"
	"github.com/nsm120/vle/telemetry/metrics"
)

// HealthSource is anything that can produce a health.Snapshot on demand; a
// *vle.Kernel satisfies this via its HealthSnapshot method.
type HealthSource interface {
	HealthSnapshot(ctx context.Context) health.Snapshot
}

// HealthHandlerOptions configures health/readiness handlers.
type HealthHandlerOptions struct {
	Source        HealthSource
	IncludeProbes bool
	Clock         func() time.Time
}

type healthResponse struct {
	Overall   health.Status        `json:"overall"`
	Probes    []health.ProbeResult `json:"probes,omitempty"`
	Generated time.Time            `json:"generated"`
	Ready     *bool                `json:"ready,omitempty"`
	Previous  string               `json:"previous,omitempty"`
	ChangedAt *time.Time           `json:"changed_at,omitempty"`
}

type readinessTracker struct {
	lastStatus atomic.Value
	changedAt  atomic.Value
}

func (rt *readinessTracker) update(cur string, now time.Time) (prev string, changedAt *time.Time) {
	pRaw := rt.lastStatus.Load()
	if pRaw != nil {
		prev = pRaw.(string)
	}
	if prev != cur {
		rt.lastStatus.Store(cur)
		nowCopy := now
		rt.changedAt.Store(nowCopy)
		return prev, &nowCopy
	}
	cRaw := rt.changedAt.Load()
	if cRaw != nil {
		cc := cRaw.(time.Time)
		changedAt = &cc
	}
	return prev, changedAt
}

var defaultTracker readinessTracker

// NewHealthHandler serves the full health rollup, including per-probe
// results when IncludeProbes is set.
func NewHealthHandler(opts HealthHandlerOptions) http.Handler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Source == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "health source nil"})
			return
		}
		snap := opts.Source.HealthSnapshot(r.Context())
		prev, changedAt := defaultTracker.update(string(snap.Overall), opts.Clock())
		resp := healthResponse{Overall: snap.Overall, Generated: snap.At}
		if opts.IncludeProbes {
			resp.Probes = snap.Results
		}
		if prev != "" && prev != string(snap.Overall) {
			resp.Previous = prev
		}
		if changedAt != nil {
			resp.ChangedAt = changedAt
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewReadinessHandler serves 200 while the overall status is healthy or
// degraded, and 503 when unhealthy or unknown.
func NewReadinessHandler(opts HealthHandlerOptions) http.Handler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if opts.Source == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "health source nil"})
			return
		}
		snap := opts.Source.HealthSnapshot(r.Context())
		prev, changedAt := defaultTracker.update(string(snap.Overall), opts.Clock())
		ready := snap.Overall == health.StatusHealthy || snap.Overall == health.StatusDegraded
		resp := healthResponse{Overall: snap.Overall, Generated: snap.At, Ready: &ready}
		if opts.IncludeProbes {
			resp.Probes = snap.Results
		}
		if prev != "" && prev != string(snap.Overall) {
			resp.Previous = prev
		}
		if changedAt != nil {
			resp.ChangedAt = changedAt
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready || snap.Overall == health.StatusUnknown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewMetricsHandler serves the provider's scrape endpoint, or 501 if the
// provider backend doesn't expose one (e.g. the noop or OTel providers).
func NewMetricsHandler(p metrics.Provider) http.Handler {
	if p == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	}
	if promP, ok := p.(interface{ MetricsHandler() http.Handler }); ok {
		return promP.MetricsHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics handler unavailable", http.StatusNotImplemented)
	})
}
