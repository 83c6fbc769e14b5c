package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
	"github.com/sarahdorsten/newsletter-digest/internal/markdown"
)

const (
	defaultTitle  = "Newsletter"
	defaultSource = "unknown"

	// gmailSearchURL opens a message in Gmail by its RFC 822 Message-Id.
	gmailSearchURL = "https://mail.google.com/mail/u/0/#search/rfc822msgid:"

	// MaxContextChars caps the Markdown characters kept per context document.
	MaxContextChars = 200000
)

// WindowMode selects how a fetch is bounded in time.
type WindowMode string

const (
	// ModeAll returns everything matching the query.
	ModeAll WindowMode = "all"
	// ModeDays prefixes the query with newer_than:<N>d.
	ModeDays WindowMode = "days"
	// ModeSince keeps messages whose internal date is after a bound.
	ModeSince WindowMode = "since"
)

// Window bounds a fetch in time.
type Window struct {
	Mode WindowMode
	// Days is used by ModeDays.
	Days int
	// Since is an exclusive lower bound in Unix milliseconds, used by ModeSince.
	Since int64
}

// LastDays returns a window of the last n days as understood by Gmail search.
func LastDays(n int) Window { return Window{Mode: ModeDays, Days: n} }

// SinceMillis returns a window of messages strictly newer than ms.
func SinceMillis(ms int64) Window { return Window{Mode: ModeSince, Since: ms} }

// AllTime returns an unbounded window.
func AllTime() Window { return Window{Mode: ModeAll} }

func (w Window) query(q string) (string, error) {
	switch w.Mode {
	case ModeDays:
		if w.Days <= 0 {
			return "", fmt.Errorf("window days must be positive, got %d", w.Days)
		}
		return strings.TrimSpace(fmt.Sprintf("newer_than:%dd %s", w.Days, q)), nil
	case ModeSince, ModeAll, "":
		return q, nil
	default:
		return "", fmt.Errorf("unknown window mode %q", w.Mode)
	}
}

func (w Window) includes(internalTS int64) bool {
	return w.Mode != ModeSince || internalTS > w.Since
}

// Newsletter is one newsletter email rendered as Markdown.
type Newsletter struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Date       time.Time `json:"date"`
	GmailLink  string    `json:"gmail_link,omitempty"`
	WebLink    string    `json:"web_link,omitempty"`
	InternalTS int64     `json:"internal_ts"`
	Text       string    `json:"text"`
}

// Link returns the web link, or the Gmail link when the body had no URL.
func (n *Newsletter) Link() string {
	if n.WebLink != "" {
		return n.WebLink
	}
	return n.GmailLink
}

func (n *Newsletter) dedupKey() string {
	switch {
	case n.WebLink != "":
		return n.WebLink
	case n.GmailLink != "":
		return n.GmailLink
	default:
		return n.Title
	}
}

// ContextDoc is a non-newsletter email used as team context.
type ContextDoc struct {
	// ID is the Message-Id header, or the Gmail id when the header is missing.
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	InternalTS int64     `json:"internal_ts"`
	Text       string    `json:"text"`
}

// FetchNewsletters returns the newsletters matching query inside window,
// newest first and de-duplicated.
func (c *Client) FetchNewsletters(ctx context.Context, window Window, query string) ([]*Newsletter, error) {
	q, err := window.query(query)
	if err != nil {
		return nil, err
	}

	msgs, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	items := make([]*Newsletter, 0, len(msgs))
	for _, m := range msgs {
		if !window.includes(m.InternalDate) {
			continue
		}
		items = append(items, NewsletterFromMessage(m))
	}

	slog.Debug("fetched newsletters", logging.Operation("gmail.fetch_newsletters"), logging.Count(len(items)), "query", q)
	return Dedupe(items), nil
}

// FetchContext returns context documents matching query inside window,
// newest first.
func (c *Client) FetchContext(ctx context.Context, window Window, query string) ([]*ContextDoc, error) {
	q, err := window.query(query)
	if err != nil {
		return nil, err
	}

	msgs, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	docs := make([]*ContextDoc, 0, len(msgs))
	for _, m := range msgs {
		if !window.includes(m.InternalDate) {
			continue
		}
		id := HeaderValue(m.Payload, "Message-Id")
		if id == "" {
			id = m.Id
		}
		text := truncateRunes(bodyMarkdown(m), MaxContextChars)
		docs = append(docs, &ContextDoc{
			ID:         id,
			Date:       time.UnixMilli(m.InternalDate).UTC(),
			InternalTS: m.InternalDate,
			Text:       text,
		})
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].InternalTS > docs[j].InternalTS })
	return docs, nil
}

// NewsletterFromMessage converts a full Gmail message to a Newsletter.
func NewsletterFromMessage(m *gmail.Message) *Newsletter {
	title := HeaderValue(m.Payload, "Subject")
	if title == "" {
		title = defaultTitle
	}
	source := HeaderValue(m.Payload, "From")
	if source == "" {
		source = defaultSource
	}

	var gmailLink string
	if msgID := HeaderValue(m.Payload, "Message-Id"); msgID != "" {
		gmailLink = gmailSearchURL + msgID
	}

	text := bodyMarkdown(m)
	return &Newsletter{
		ID:         m.Id,
		Title:      title,
		Source:     source,
		Date:       time.UnixMilli(m.InternalDate).UTC(),
		GmailLink:  gmailLink,
		WebLink:    FirstURL(text),
		InternalTS: m.InternalDate,
		Text:       text,
	}
}

// Dedupe sorts items newest first and keeps the first occurrence of each
// web link, Gmail link or title.
func Dedupe(items []*Newsletter) []*Newsletter {
	sorted := make([]*Newsletter, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].InternalTS > sorted[j].InternalTS })

	seen := make(map[string]bool, len(sorted))
	out := make([]*Newsletter, 0, len(sorted))
	for _, n := range sorted {
		key := n.dedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// bodyMarkdown converts the HTML body to Markdown, falling back to the snippet.
func bodyMarkdown(m *gmail.Message) string {
	if body := HTMLBody(m.Payload); body != "" {
		md, err := markdown.FromHTML(body)
		if err == nil {
			return md
		}
		slog.Warn("failed to convert message body", "message_id", m.Id, logging.Err(err))
	}
	return Snippet(m)
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
