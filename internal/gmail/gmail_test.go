package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const messagesPath = "/gmail/v1/users/me/messages"

// fakeGmail serves users.messages.list and users.messages.get from memory.
type fakeGmail struct {
	mu       sync.Mutex
	messages []*gmail.Message
	pageSize int
	queries  []string
	fail     bool
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.fail {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"insufficient permissions"}}`))
		return
	}

	switch {
	case r.URL.Path == messagesPath:
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		start, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
		end := start + f.pageSize
		resp := &gmail.ListMessagesResponse{}
		if end < len(f.messages) {
			resp.NextPageToken = strconv.Itoa(end)
		} else {
			end = len(f.messages)
		}
		for _, m := range f.messages[start:end] {
			resp.Messages = append(resp.Messages, &gmail.Message{Id: m.Id, ThreadId: m.Id})
		}
		_ = json.NewEncoder(w).Encode(resp)

	case strings.HasPrefix(r.URL.Path, messagesPath+"/"):
		id := strings.TrimPrefix(r.URL.Path, messagesPath+"/")
		for _, m := range f.messages {
			if m.Id == id {
				_ = json.NewEncoder(w).Encode(m)
				return
			}
		}
		http.NotFound(w, r)

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeGmail) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func htmlMessage(id string, ts int64, headers map[string]string, body string) *gmail.Message {
	m := &gmail.Message{
		Id:           id,
		InternalDate: ts,
		Snippet:      "snippet " + id,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain " + id)}},
			},
		},
	}
	for name, value := range headers {
		m.Payload.Headers = append(m.Payload.Headers, &gmail.MessagePartHeader{Name: name, Value: value})
	}
	if body != "" {
		m.Payload.Parts = append(m.Payload.Parts, &gmail.MessagePart{
			MimeType: "text/html; charset=utf-8",
			Body:     &gmail.MessagePartBody{Data: encode(body)},
		})
	}
	return m
}

func newsletterFixture() *fakeGmail {
	issue := `<p>Big story <a href="https://example.com/issue-1">Read online</a></p>`
	older := htmlMessage("c", 1000, nil, "")
	older.Snippet = "Weekly &amp; more"
	return &fakeGmail{
		pageSize: 2,
		messages: []*gmail.Message{
			older,
			htmlMessage("a", 3000, map[string]string{
				"Subject":    "AI Weekly #1",
				"From":       "AI Weekly <news@aiweekly.co>",
				"Message-ID": "<a@mail.aiweekly.co>",
			}, issue),
			htmlMessage("b", 2000, map[string]string{
				"Subject": "AI Weekly #1 (resend)",
				"From":    "AI Weekly <news@aiweekly.co>",
			}, issue),
		},
	}
}

func TestFetchNewsletters_LastDays(t *testing.T) {
	fake := newsletterFixture()
	client := newTestClient(t, fake)

	items, err := client.FetchNewsletters(context.Background(), LastDays(30), "label:news")
	require.NoError(t, err)

	assert.Equal(t, []string{"newer_than:30d label:news", "newer_than:30d label:news"}, fake.queries)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "AI Weekly #1", first.Title)
	assert.Equal(t, "AI Weekly <news@aiweekly.co>", first.Source)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#search/rfc822msgid:<a@mail.aiweekly.co>", first.GmailLink)
	assert.Equal(t, "https://example.com/issue-1", first.WebLink)
	assert.Equal(t, "https://example.com/issue-1", first.Link())
	assert.Equal(t, "Big story [Read online](https://example.com/issue-1)", first.Text)
	assert.Equal(t, int64(3000), first.InternalTS)
	assert.Equal(t, int64(3000), first.Date.UnixMilli())

	second := items[1]
	assert.Equal(t, "c", second.ID)
	assert.Equal(t, "Newsletter", second.Title)
	assert.Equal(t, "unknown", second.Source)
	assert.Empty(t, second.GmailLink)
	assert.Empty(t, second.WebLink)
	assert.Equal(t, "Weekly & more", second.Text)
}

func TestFetchNewsletters_Since(t *testing.T) {
	fake := newsletterFixture()
	client := newTestClient(t, fake)

	items, err := client.FetchNewsletters(context.Background(), SinceMillis(2000), "label:news")
	require.NoError(t, err)

	assert.Equal(t, "label:news", fake.queries[0])
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestFetchNewsletters_InvalidWindow(t *testing.T) {
	client := newTestClient(t, &fakeGmail{pageSize: 10})

	_, err := client.FetchNewsletters(context.Background(), LastDays(0), "label:news")
	assert.Error(t, err)

	_, err = client.FetchNewsletters(context.Background(), Window{Mode: "weeks"}, "label:news")
	assert.Error(t, err)
}

func TestFetchNewsletters_APIError(t *testing.T) {
	client := newTestClient(t, &fakeGmail{pageSize: 10, fail: true})

	_, err := client.FetchNewsletters(context.Background(), LastDays(7), "label:news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list messages")
}

func TestFetchContext(t *testing.T) {
	long := "<p>" + strings.Repeat("x", MaxContextChars-1) + strings.Repeat("é", 500) + "</p>"
	fake := &fakeGmail{
		pageSize: 100,
		messages: []*gmail.Message{
			htmlMessage("old", 1000, map[string]string{"Message-Id": "<old@granola>"}, "<h2>Standup</h2><p>Ship it</p>"),
			htmlMessage("new", 5000, nil, long),
		},
	}
	client := newTestClient(t, fake)

	docs, err := client.FetchContext(context.Background(), AllTime(), "from:granola")
	require.NoError(t, err)
	assert.Equal(t, []string{"from:granola"}, fake.queries)

	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
	assert.Equal(t, MaxContextChars, utf8.RuneCountInString(docs[0].Text))
	assert.True(t, utf8.ValidString(docs[0].Text))
	assert.True(t, strings.HasSuffix(docs[0].Text, "xé"))
	assert.Equal(t, "<old@granola>", docs[1].ID)
	assert.Equal(t, "## Standup\n\nShip it", docs[1].Text)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "aé", truncateRunes("aéé", 2))
	assert.Equal(t, "ééé", truncateRunes("ééé", 3))
	assert.Empty(t, truncateRunes("é", 0))
}

func TestHeaderValue(t *testing.T) {
	part := &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "Message-ID", Value: "<x@y>"},
		{Name: "subject", Value: "Hello"},
	}}

	assert.Equal(t, "<x@y>", HeaderValue(part, "Message-Id"))
	assert.Equal(t, "Hello", HeaderValue(part, "Subject"))
	assert.Empty(t, HeaderValue(part, "From"))
	assert.Empty(t, HeaderValue(nil, "From"))
}

func TestHTMLBody_LastPartWins(t *testing.T) {
	part := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>first</p>")}},
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("<p>second</p>"))}},
				},
			},
			{MimeType: "text/html", Body: &gmail.MessagePartBody{}},
		},
	}

	assert.Equal(t, "<p>second</p>", HTMLBody(part))
	assert.Empty(t, HTMLBody(&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("hi")}}))
}

func TestFirstURL(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"see [post](https://example.com/post) and https://other.example.com/x", "https://example.com/post"},
		{"short https://a.io then http://longer.example.org/path", "http://longer.example.org/path"},
		{"[x](https://example.com/a]b)", "https://example.com/a"},
		{"no links here", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstURL(tt.text), tt.text)
	}
}

func TestDedupe(t *testing.T) {
	items := []*Newsletter{
		{ID: "1", Title: "Same title", InternalTS: 1},
		{ID: "2", Title: "Same title", InternalTS: 2},
		{ID: "3", Title: "Other", GmailLink: "g", InternalTS: 3},
		{ID: "4", Title: "Third", GmailLink: "g", WebLink: "w", InternalTS: 4},
		{ID: "5", Title: "Fourth", GmailLink: "g", InternalTS: 0},
	}

	out := Dedupe(items)
	var ids []string
	for _, n := range out {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"4", "3", "2"}, ids)
}
