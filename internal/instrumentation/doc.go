// Package instrumentation provides OpenTelemetry metrics and tracing for
// newsletter-digest.
//
// A Provider wires the meter and tracer providers for the configured
// exporters (Prometheus, OTLP over HTTP, or stdout). Metrics records the
// pipeline's counters and histograms; every Record method is safe to call on
// a nil or disabled Metrics so callers never need to guard.
//
// Configuration comes from the environment:
//
//	INSTRUMENTATION_ENABLED      enable metrics and tracing (default true)
//	METRICS_EXPORTER             prometheus, otlp or stdout (default prometheus)
//	TRACING_EXPORTER             otlp, stdout or none (default none)
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector endpoint, e.g. localhost:4318
//	OTEL_EXPORTER_OTLP_INSECURE  use plain HTTP for OTLP
//	OTEL_TRACES_SAMPLER_ARG      trace sampling ratio (default 0.1)
//	OTEL_SERVICE_NAME            service name (default newsletter-digest)
//	OTEL_RESOURCE_ATTRIBUTES     extra resource attributes
//
// Exported telemetry carries the digest timezone, model and schedule as
// digest.* resource attributes.
package instrumentation
