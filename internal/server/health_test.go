package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		shutdown   bool
		wantStatus int
		wantChecks map[string]string
	}{
		{"ready", true, false, http.StatusOK, map[string]string{"ready": "ok", "shutdown": "ok"}},
		{"not ready", false, false, http.StatusServiceUnavailable, map[string]string{"ready": "not ready", "shutdown": "ok"}},
		{"shutting down", true, true, http.StatusServiceUnavailable, map[string]string{"ready": "ok", "shutdown": "shutting down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			h := NewHealthChecker(env.sc)
			h.SetReady(tt.ready)
			if tt.shutdown {
				require.NoError(t, env.sc.Shutdown())
			}

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var got HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.wantChecks, got.Checks)
		})
	}
}

func TestHealthChecker_Detailed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz/detailed")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got DetailedHealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "anthropic/claude-opus-4-5", got.Model)
	assert.False(t, got.TurnRunning)
	assert.Equal(t, map[string]string{
		"dom_bridge": "disconnected",
		"gmail":      "unauthorized",
	}, got.Components)
}

func TestHealthChecker_DetailedWithoutContext(t *testing.T) {
	h := NewHealthChecker(nil)
	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	var got DetailedHealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, map[string]string{"dom_bridge": "disabled", "gmail": "disabled"}, got.Components)
}
