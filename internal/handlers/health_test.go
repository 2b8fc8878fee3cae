package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonglijing/clinisense/internal/circuit"
	"github.com/gonglijing/clinisense/internal/dashboard"
)

func openBreaker(t *testing.T) *circuit.CircuitBreaker {
	t.Helper()
	cb := circuit.NewCircuitBreaker(&circuit.Config{Name: "upstream", FailureThreshold: 1, RecoveryTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("connection refused") })
	require.Equal(t, circuit.Open, cb.State())
	return cb
}

func TestHealth_DegradedWhenBreakerOpen(t *testing.T) {
	h := NewHandler(Deps{
		Breaker: openBreaker(t),
		Checks:  map[string]Check{"database": func(context.Context) error { return nil }},
	})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "pass", got.Results["database"].Status)
	assert.Equal(t, "fail", got.Results["upstream"].Status)
}

func TestReadiness(t *testing.T) {
	h := NewHandler(Deps{
		Breaker: openBreaker(t),
		Checks:  map[string]Check{"database": func(context.Context) error { return nil }},
	})
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "open breaker serves stale data and stays ready")

	h = NewHandler(Deps{
		Checks: map[string]Check{"cache": func(context.Context) error { return errors.New("dial tcp: refused") }},
	})
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache")
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	Liveness(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

type stubLive struct{ clients int }

func (s stubLive) ServeWS(w http.ResponseWriter, r *http.Request, scope string) error { return nil }
func (s stubLive) ClientCount() int                                                   { return s.clients }

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.h.live = stubLive{clients: 3}
	env.h.breaker = openBreaker(t)
	env.dash.Pin(dashboard.Scope{Key: "admin", Token: "up-token"})

	rec := httptest.NewRecorder()
	env.h.Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got SystemMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Dashboard.WebSocketClients)
	assert.Equal(t, 1, got.Dashboard.PolledScopes)
	require.NotNil(t, got.Upstream)
	assert.Equal(t, int64(1), got.Upstream.Failures)
}
