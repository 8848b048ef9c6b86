package telemetryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsm120/vle/telemetry/health"
)

type healthPayload struct {
	Overall string `json:"overall"`
	Ready   *bool  `json:"ready,omitempty"`
}

// stubHealthSource implements HealthSource with a controllable snapshot.
type stubHealthSource struct{ snap health.Snapshot }

func (s *stubHealthSource) setStatus(st health.Status) {
	s.snap = health.Snapshot{Overall: st, At: time.Now()}
}

func (s *stubHealthSource) HealthSnapshot(ctx context.Context) health.Snapshot {
	return s.snap
}

func TestHealthHandlerBasic(t *testing.T) {
	src := &stubHealthSource{}
	src.setStatus(health.StatusHealthy)
	h := NewHealthHandler(HealthHandlerOptions{Source: src, IncludeProbes: true})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, 200, w.Code)

	var payload healthPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "healthy", payload.Overall)
}

func TestReadinessHandler(t *testing.T) {
	src := &stubHealthSource{}
	src.setStatus(health.StatusUnhealthy)
	h := NewReadinessHandler(HealthHandlerOptions{Source: src})
	r := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r)
	assert.Equal(t, http.StatusServiceUnavailable, w1.Code)

	src.setStatus(health.StatusHealthy)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestHealthHandlerNilSource(t *testing.T) {
	h := NewHealthHandler(HealthHandlerOptions{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
