package common

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// ToolHandler is an MCP tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

var errToolResult = errors.New("tool returned an error result")

// InstrumentedToolHandler wraps a tool handler with a span, invocation
// metrics and a debug log line. metrics may be nil.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", metrics, handler))
func InstrumentedToolHandler(toolName string, metrics *instrumentation.Metrics, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		start := time.Now()

		result, err := handler(ctx, request)
		duration := time.Since(start)

		spanErr := err
		if spanErr == nil && result != nil && result.IsError {
			spanErr = errToolResult
		}
		status := instrumentation.StatusOf(spanErr)

		metrics.RecordToolInvocation(ctx, toolName, status, duration)
		instrumentation.EndSpan(span, spanErr)
		slog.Debug("tool invoked", "tool", toolName, logging.Status(status), "duration", duration)

		return result, err
	}
}
