package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"basket_swap/internal/core"
	"basket_swap/internal/infrastructure/health"
	"basket_swap/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRuns core.RunSnapshot

func (s staticRuns) Snapshot() core.RunSnapshot { return core.RunSnapshot(s) }

func TestHealthServer_Health(t *testing.T) {
	hm := health.NewHealthManager(nil)
	hm.Register("orchestrator", func() error { return nil })
	srv := NewHealthServer("0", logging.NopLogger{}, hm, staticRuns{ID: "r1", Status: core.RunCompleted, AllOK: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "r1", body["run"].(map[string]any)["id"])
	assert.Equal(t, "Healthy", body["components"].(map[string]any)["orchestrator"])
}

func TestHealthServer_Unhealthy(t *testing.T) {
	hm := health.NewHealthManager(nil)
	hm.Register("chain_rpc", func() error { return errors.New("unreachable") })
	srv := NewHealthServer("0", logging.NopLogger{}, hm, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestHealthServer_Status(t *testing.T) {
	hm := health.NewHealthManager(nil)
	hm.Register("orchestrator", func() error { return nil })
	srv := NewHealthServer("0", logging.NopLogger{}, hm, nil)
	srv.UpdateStatus("engine", "simple")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "simple", body["engine"])
	assert.Equal(t, "Healthy", body["orchestrator"])
}

func TestHealthServer_Metrics(t *testing.T) {
	srv := NewHealthServer("0", logging.NopLogger{}, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
