// Package server exposes the daemon's operational HTTP endpoints.
//
// MetricsServer serves Prometheus metrics on /metrics when the Prometheus
// exporter is enabled, and the HealthChecker endpoints:
//   - /healthz: liveness
//   - /readyz: readiness, false until the scheduler is running and while
//     shutting down
//   - /healthz/detailed: uptime plus the last recorded run and the next
//     scheduled run
package server
