package server

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

	"github.com/sarahdorsten/newsletter-digest/internal/history"
)

type staticRuns struct {
	run *history.Run
	err error
}

func (s staticRuns) LastRun(context.Context) (*history.Run, error) {
	return s.run, s.err
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthChecker_Readiness(t *testing.T) {
	h := NewHealthChecker(nil)
	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)

	rec, body := get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["checks"].(map[string]any)["scheduler"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	rec, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.True(t, h.IsReady())

	h.SetShuttingDown()
	rec, body = get(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting down", body["checks"].(map[string]any)["shutdown"])
	assert.False(t, h.IsReady())

	rec, _ = get(t, mux, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_Detailed(t *testing.T) {
	started := time.Date(2025, 11, 13, 8, 0, 0, 0, time.UTC)
	next := time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)

	h := NewHealthChecker(staticRuns{run: &history.Run{
		ID:          7,
		Status:      history.StatusSuccess,
		StartedAt:   started,
		FinishedAt:  started.Add(95 * time.Second),
		Newsletters: 18,
	}})
	h.SetReady(true)
	h.SetNextRun(func() time.Time { return next })

	rec, body := get(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
	assert.Equal(t, "2025-11-20T08:00:00Z", body["next_run"])

	last := body["last_run"].(map[string]any)
	assert.Equal(t, float64(7), last["id"])
	assert.Equal(t, "success", last["status"])
	assert.Equal(t, "1m35s", last["duration"])
	assert.Equal(t, float64(18), last["newsletters"])
	assert.NotContains(t, last, "error")
}

func TestHealthChecker_DetailedWithoutRuns(t *testing.T) {
	h := NewHealthChecker(staticRuns{err: errors.New("database locked")})

	rec, body := get(t, h.DetailedHealthHandler(), "/healthz/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.NotContains(t, body, "last_run")
	assert.NotContains(t, body, "next_run")
}
