package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarahdorsten/newsletter-digest/internal/history"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// RunSource reports the most recent pipeline run.
type RunSource interface {
	LastRun(ctx context.Context) (*history.Run, error)
}

// HealthChecker provides liveness and readiness endpoints for the daemon.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	runs         RunSource
	startTime    time.Time

	mu      sync.RWMutex
	nextRun func() time.Time
}

// NewHealthChecker creates a HealthChecker. runs may be nil.
// The checker starts not ready.
func NewHealthChecker(runs RunSource) *HealthChecker {
	return &HealthChecker{
		runs:      runs,
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the daemon is ready.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load() && !h.shuttingDown.Load()
}

// SetShuttingDown marks the daemon as stopping.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// SetNextRun registers a function reporting the next scheduled run.
func (h *HealthChecker) SetNextRun(fn func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextRun = fn
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RunSummary describes a recorded run.
type RunSummary struct {
	ID          int64     `json:"id"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration,omitempty"`
	Newsletters int       `json:"newsletters"`
	Error       string    `json:"error,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status  string      `json:"status"`
	Uptime  string      `json:"uptime"`
	LastRun *RunSummary `json:"last_run,omitempty"`
	NextRun *time.Time  `json:"next_run,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{
			"scheduler": healthStatusOK,
			"shutdown":  healthStatusOK,
		}
		if !h.ready.Load() {
			checks["scheduler"] = healthStatusNotReady
		}
		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
		}

		if h.IsReady() {
			writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if h.runs != nil {
			run, err := h.runs.LastRun(r.Context())
			if err != nil {
				slog.Warn("failed to read last run", logging.Err(err))
			} else if run != nil {
				resp.LastRun = &RunSummary{
					ID:          run.ID,
					Status:      run.Status,
					StartedAt:   run.StartedAt.UTC(),
					Newsletters: run.Newsletters,
					Error:       run.Error,
				}
				if d := run.Duration(); d > 0 {
					resp.LastRun.Duration = d.String()
				}
			}
		}

		h.mu.RLock()
		next := h.nextRun
		h.mu.RUnlock()
		if next != nil {
			if t := next(); !t.IsZero() {
				t = t.UTC()
				resp.NextRun = &t
			}
		}

		status := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			resp.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		case !h.ready.Load():
			resp.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
