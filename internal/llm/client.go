// Package llm is a minimal client for the Anthropic Messages API.
//
// Requests are sent once; failures are returned to the caller without retry.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
)

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"

	// DefaultTimeout bounds a single completion. Deep analysis of twenty
	// newsletters can take minutes.
	DefaultTimeout = 5 * time.Minute

	messagesPath = "/v1/messages"
)

// ErrMissingAPIKey is returned by NewClient when no API key is configured.
var ErrMissingAPIKey = errors.New("missing Anthropic API key (set ANTHROPIC_API_KEY)")

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a Messages API request.
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`

	// Operation labels metrics and spans ("rank", "analyze"). Not sent.
	Operation string `json:"-"`
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float64) *float64 {
	return &t
}

// UserPrompt builds a single-turn request.
func UserPrompt(model string, maxTokens int, temperature float64, prompt string) Request {
	return Request{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: Temperature(temperature),
		Messages:    []Message{{Role: "user", Content: prompt}},
	}
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed message.
type Response struct {
	ID         string
	Model      string
	StopReason string
	// Text is the concatenation of all text content blocks.
	Text  string
	Usage Usage
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

type apiErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx response from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic api error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic api error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the Messages API.
type Client struct {
	http    *resty.Client
	metrics *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.http.SetBaseURL(url) }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithMetrics makes the client record request and token metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(DefaultBaseURL).
			SetTimeout(DefaultTimeout).
			SetHeader("x-api-key", apiKey).
			SetHeader("anthropic-version", APIVersion).
			SetHeader("Content-Type", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete sends req and returns the model's reply.
func (c *Client) Complete(ctx context.Context, req Request) (resp *Response, err error) {
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceAnthropic, "messages.create",
		attribute.String(instrumentation.SpanAttrModel, req.Model),
		attribute.String(instrumentation.SpanAttrStage, req.Operation),
	)
	start := time.Now()
	defer func() {
		c.metrics.RecordLLMRequest(ctx, req.Operation, req.Model, instrumentation.StatusOf(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	var out apiResponse
	var apiErr apiErrorBody
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(messagesPath)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	if r.IsError() {
		e := &APIError{
			StatusCode: r.StatusCode(),
			Type:       apiErr.Error.Type,
			Message:    apiErr.Error.Message,
		}
		if e.Message == "" {
			e.Message = strings.TrimSpace(r.String())
		}
		return nil, e
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.metrics.RecordLLMTokens(ctx, req.Model, out.Usage.InputTokens, out.Usage.OutputTokens)

	return &Response{
		ID:         out.ID,
		Model:      out.Model,
		StopReason: out.StopReason,
		Text:       text.String(),
		Usage:      out.Usage,
	}, nil
}
