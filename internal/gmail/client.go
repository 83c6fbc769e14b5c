package gmail

import (
	"context"
	"fmt"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
)

const (
	// me is the Gmail user id of the authorized account.
	me = "me"

	// listPageSize is the number of message ids requested per list page.
	listPageSize = 100
)

// Client wraps the Gmail Users service.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

// NewClient creates a Gmail client. Pass option.WithHTTPClient with an
// OAuth-authorized client in production.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// WithMetrics makes the client record Google API metrics.
func (c *Client) WithMetrics(m *instrumentation.Metrics) *Client {
	c.metrics = m
	return c
}

// ForeachMessage calls fn for every message id matching the query, newest first.
// Listed messages carry only their id and thread id.
func (c *Client) ForeachMessage(ctx context.Context, q string, fn func(*gmail.Message) error) (err error) {
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceGmail, "messages.list")
	start := time.Now()
	defer func() {
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, "messages.list", instrumentation.StatusOf(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	call := c.svc.Messages.List(me).Q(q).MaxResults(listPageSize)
	err = call.Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, m := range page.Messages {
			if err := fn(m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list messages for %q: %w", q, err)
	}
	return nil
}

// GetMessage retrieves a full Gmail message.
func (c *Client) GetMessage(ctx context.Context, id string) (msg *gmail.Message, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, "messages.get", instrumentation.StatusOf(err), time.Since(start))
	}()

	msg, err = c.svc.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// fetch lists the query and fetches every message in full.
func (c *Client) fetch(ctx context.Context, q string) ([]*gmail.Message, error) {
	var ids []string
	err := c.ForeachMessage(ctx, q, func(m *gmail.Message) error {
		ids = append(ids, m.Id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]*gmail.Message, 0, len(ids))
	for _, id := range ids {
		m, err := c.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
