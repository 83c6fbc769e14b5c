// Package slack delivers briefs to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	slackapi "github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sarahdorsten/newsletter-digest/internal/history"
	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// Slack rejects messages above 4000 characters.
const (
	singleMessageLimit = 3900
	sectionLimit       = 3800
)

// ErrAlreadyPosted is returned by PostBrief when the brief was delivered before.
var ErrAlreadyPosted = errors.New("brief already posted to Slack")

// PostStore remembers which briefs were delivered.
type PostStore interface {
	IsPosted(ctx context.Context, briefPath string) (bool, error)
	RecordPost(ctx context.Context, p history.Post) error
}

// Poster posts briefs and thread replies to one channel.
type Poster struct {
	api        *slackapi.Client
	apiURL     string
	channel    string
	webBaseURL string
	store      PostStore
	metrics    *instrumentation.Metrics
	now        func() time.Time
}

// Option configures a Poster.
type Option func(*Poster)

// WithAPIURL overrides the Slack Web API base URL.
func WithAPIURL(url string) Option {
	return func(p *Poster) { p.apiURL = url }
}

// WithWebBaseURL adds a "read on web" link to windowed briefs.
func WithWebBaseURL(url string) Option {
	return func(p *Poster) { p.webBaseURL = strings.TrimRight(url, "/") }
}

// WithStore enables the already-posted check.
func WithStore(s PostStore) Option {
	return func(p *Poster) { p.store = s }
}

// WithMetrics records delivered messages.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Poster) { p.metrics = m }
}

// WithClock sets the clock used for the undated header.
func WithClock(now func() time.Time) Option {
	return func(p *Poster) { p.now = now }
}

// NewPoster creates a Poster for channel authenticated with a bot token.
func NewPoster(token, channel string, opts ...Option) *Poster {
	p := &Poster{channel: channel, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []slackapi.Option
	if p.apiURL != "" {
		u := p.apiURL
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		clientOpts = append(clientOpts, slackapi.OptionAPIURL(u))
	}
	p.api = slackapi.New(token, clientOpts...)
	return p
}

// Channel returns the configured channel.
func (p *Poster) Channel() string {
	return p.channel
}

// PostBrief posts a brief and returns the timestamp of its thread.
// Long briefs continue in the thread; the sources section is always a
// thread reply. briefPath and window may be empty.
func (p *Poster) PostBrief(ctx context.Context, markdown, briefPath, window string) (string, error) {
	if briefPath != "" && p.store != nil {
		posted, err := p.store.IsPosted(ctx, briefPath)
		if err != nil {
			return "", err
		}
		if posted {
			return "", ErrAlreadyPosted
		}
	}

	content, sources := SplitBriefAndSources(markdown)
	body := FormatForSlack(content)
	header := p.header(briefPath, window)

	full := header + "\n\n" + body
	var threadTS, channelID string
	var err error
	if utf8.RuneCountInString(full) > singleMessageLimit {
		sections := SplitAtSections(body, sectionLimit)
		channelID, threadTS, err = p.post(ctx, header+"\n\n"+sections[0], "")
		if err != nil {
			return "", err
		}
		for _, section := range sections[1:] {
			if _, _, err := p.post(ctx, section, threadTS); err != nil {
				return threadTS, err
			}
		}
		slog.Debug("brief split into thread", logging.Count(len(sections)))
	} else {
		channelID, threadTS, err = p.post(ctx, full, "")
		if err != nil {
			return "", err
		}
	}

	if sources != "" {
		if _, _, err := p.post(ctx, "📚 *Sources*\n"+FormatForSlack(sources), threadTS); err != nil {
			return threadTS, err
		}
	}

	if briefPath != "" && p.store != nil {
		if err := p.store.RecordPost(ctx, history.Post{
			BriefPath: briefPath,
			Channel:   channelID,
			ThreadTS:  threadTS,
			PostedAt:  p.now(),
		}); err != nil {
			return threadTS, err
		}
	}

	slog.Info("brief posted to Slack", "channel", p.channel, "thread_ts", threadTS)
	return threadTS, nil
}

// ReplyToThread posts text as a reply to threadTS.
func (p *Poster) ReplyToThread(ctx context.Context, threadTS, text string) error {
	_, _, err := p.post(ctx, text, threadTS)
	return err
}

func (p *Poster) header(briefPath, window string) string {
	if window != "" {
		header := "📊 *AI Pulse Brief* — Coverage: " + window
		if briefPath != "" && p.webBaseURL != "" {
			date := strings.TrimSuffix(filepath.Base(briefPath), "-weekly.md")
			header += fmt.Sprintf("\n🔗 <%s/brief/%s|Read full brief on web>", p.webBaseURL, date)
		}
		return header
	}

	header := "🤖 *AI Builder Brief* — " + p.now().UTC().Format("January 02, 2006 at 15:04 UTC")
	if briefPath != "" {
		header += "\n📄 _Saved to:_ `" + filepath.Base(briefPath) + "`"
	}
	return header
}

func (p *Poster) post(ctx context.Context, text, threadTS string) (channelID, ts string, err error) {
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceSlack, "chat.postMessage",
		attribute.Bool("slack.threaded", threadTS != ""))
	defer func() {
		p.metrics.RecordSlackMessage(ctx, instrumentation.StatusOf(err))
		instrumentation.EndSpan(span, err)
	}()

	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(threadTS))
	}

	channelID, ts, err = p.api.PostMessageContext(ctx, p.channel, opts...)
	if err != nil {
		return "", "", p.explain(err)
	}
	return channelID, ts, nil
}

// explain adds a hint for the errors a misconfigured channel produces.
func (p *Poster) explain(err error) error {
	var serr slackapi.SlackErrorResponse
	if !errors.As(err, &serr) {
		return fmt.Errorf("failed to post to Slack: %w", err)
	}
	switch serr.Err {
	case "channel_not_found":
		return fmt.Errorf("failed to post to Slack: %w (make sure the channel %s exists and the bot is invited to it)", err, p.channel)
	case "not_in_channel":
		return fmt.Errorf("failed to post to Slack: %w (invite the bot to %s with /invite @your-bot-name)", err, p.channel)
	default:
		return fmt.Errorf("failed to post to Slack: %w", err)
	}
}
