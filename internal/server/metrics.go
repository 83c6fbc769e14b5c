package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the default address for the metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultMetricsReadTimeout is the default read timeout for the metrics server.
	DefaultMetricsReadTimeout = 10 * time.Second

	// DefaultMetricsWriteTimeout is the default write timeout for the metrics server.
	DefaultMetricsWriteTimeout = 10 * time.Second

	// DefaultMetricsIdleTimeout is the default idle timeout for the metrics server.
	DefaultMetricsIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig holds configuration for the metrics server.
type MetricsServerConfig struct {
	// Addr is the address to bind to (e.g., ":9090").
	Addr string

	// InstrumentationProvider enables /metrics when its Prometheus exporter
	// is active. May be nil.
	InstrumentationProvider *instrumentation.Provider

	// Health serves /healthz, /readyz and /healthz/detailed. May be nil.
	Health *HealthChecker
}

// MetricsServer serves metrics and health endpoints on a dedicated port.
type MetricsServer struct {
	httpServer *http.Server
	addr       string
	handler    http.Handler
}

// NewMetricsServer creates a new metrics server with the given configuration.
func NewMetricsServer(config MetricsServerConfig) *MetricsServer {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	if p := config.InstrumentationProvider; p != nil && p.PrometheusEnabled() {
		// The OpenTelemetry Prometheus exporter registers with the default
		// registry, which promhttp.Handler exposes.
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		slog.Debug("prometheus exporter disabled, /metrics not served")
	}

	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: DefaultMetricsReadTimeout,
		WriteTimeout:      DefaultMetricsWriteTimeout,
		IdleTimeout:       DefaultMetricsIdleTimeout,
	}
	return &MetricsServer{httpServer: srv, addr: config.Addr, handler: mux}
}

// Handler returns the server's request handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called. It blocks.
func (s *MetricsServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal binds the listener, sends the bound address on ready
// (if non-nil) and serves until Shutdown is called.
func (s *MetricsServer) StartWithReadySignal(ready chan<- string) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	slog.Info("starting metrics server", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	slog.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured address for the metrics server.
func (s *MetricsServer) Addr() string {
	return s.addr
}
