package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// Config selects the telemetry exporters and describes the digest this
// process builds. The digest fields end up as resource attributes on every
// exported metric and span.
type Config struct {
	Enabled        bool
	ServiceVersion string

	// Metrics is one of "prometheus", "otlp" or "stdout". Empty means prometheus.
	Metrics string
	// Traces is one of "otlp", "stdout" or "none". Empty means none.
	Traces string

	// OTLPEndpoint is host:port of the collector, without scheme.
	OTLPEndpoint string
	OTLPInsecure bool

	// SampleRate is the ratio of root traces kept.
	SampleRate float64

	Timezone string
	Model    string
	Schedule string
}

// Environment variables read by FromEnv. The standard OTEL_SERVICE_NAME and
// OTEL_RESOURCE_ATTRIBUTES are honored by the resource detector.
const (
	EnvEnabled      = "INSTRUMENTATION_ENABLED"
	EnvMetrics      = "METRICS_EXPORTER"
	EnvTraces       = "TRACING_EXPORTER"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvSampleRate   = "OTEL_TRACES_SAMPLER_ARG"
)

// FromEnv returns the exporter settings found in the environment. Unset or
// malformed values fall back to prometheus metrics, no traces and a 10%
// sample rate.
func FromEnv() Config {
	str := func(s string) (string, error) { return s, nil }
	return Config{
		Enabled:      env(EnvEnabled, true, strconv.ParseBool),
		Metrics:      env(EnvMetrics, ExporterPrometheus, str),
		Traces:       env(EnvTraces, ExporterNone, str),
		OTLPEndpoint: env(EnvOTLPEndpoint, "", str),
		OTLPInsecure: env(EnvOTLPInsecure, false, strconv.ParseBool),
		SampleRate: env(EnvSampleRate, 0.1, func(s string) (float64, error) {
			return strconv.ParseFloat(s, 64)
		}),
	}
}

func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

var (
	metricExporters = []string{ExporterPrometheus, ExporterOTLP, ExporterStdout}
	traceExporters  = []string{ExporterOTLP, ExporterStdout, ExporterNone}
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.SampleRate))
	}
	if c.Metrics != "" && !slices.Contains(metricExporters, c.Metrics) {
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of %v", c.Metrics, metricExporters))
	}
	if c.Traces != "" && !slices.Contains(traceExporters, c.Traces) {
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of %v", c.Traces, traceExporters))
	}
	if c.OTLPEndpoint == "" && (c.Metrics == ExporterOTLP || c.Traces == ExporterOTLP) {
		errs = append(errs, fmt.Errorf("OTLP endpoint is required for the otlp exporter; set %s", EnvOTLPEndpoint))
	}
	return errors.Join(errs...)
}

// Constants for metric label values.
const (
	ServiceName = "newsletter-digest"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"

	// External services
	ServiceGmail     = "gmail"
	ServiceAnthropic = "anthropic"
	ServiceSlack     = "slack"

	// Newsletter counts per pipeline stage
	StageFetched  = "fetched"
	StageInWindow = "in_window"
	StageDeep     = "deep"
	StageSummary  = "summary"

	// Token directions
	DirectionInput  = "input"
	DirectionOutput = "output"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Resource attributes describing the digest.
	ResourceAttrTimezone = "digest.timezone"
	ResourceAttrModel    = "digest.model"
	ResourceAttrSchedule = "digest.schedule"

	exportInterval = 10 * time.Second
)
