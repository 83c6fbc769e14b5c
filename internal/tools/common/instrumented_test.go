package common

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestInstrumentedToolHandler(t *testing.T) {
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		metrics    *instrumentation.Metrics
		handler    ToolHandler
		wantErr    bool
		wantStatus codes.Code
	}{
		{
			name:    "success",
			metrics: metrics,
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantStatus: codes.Ok,
		},
		{
			name: "success without metrics",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantStatus: codes.Ok,
		},
		{
			name:    "error result",
			metrics: metrics,
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("no briefs archived yet"), nil
			},
			wantStatus: codes.Error,
		},
		{
			name:    "handler error",
			metrics: metrics,
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("boom")
			},
			wantErr:    true,
			wantStatus: codes.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			wrapped := InstrumentedToolHandler("digest_latest_brief", tt.metrics, tt.handler)
			_, err := wrapped(context.Background(), mcp.CallToolRequest{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "tool.digest_latest_brief", spans[0].Name())
			assert.Equal(t, tt.wantStatus, spans[0].Status().Code)
		})
	}
}
