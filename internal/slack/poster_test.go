package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarahdorsten/newsletter-digest/internal/history"
)

type postedMessage struct {
	Channel  string
	Text     string
	ThreadTS string
}

type fakeSlack struct {
	mu       sync.Mutex
	messages []postedMessage
	failWith string
}

func newFakeSlack(t *testing.T) (*fakeSlack, *httptest.Server) {
	t.Helper()
	f := &fakeSlack{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if f.failWith != "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": f.failWith})
			return
		}
		f.messages = append(f.messages, postedMessage{
			Channel:  r.FormValue("channel"),
			Text:     r.FormValue("text"),
			ThreadTS: r.FormValue("thread_ts"),
		})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"channel": "C0123",
			"ts":      fmt.Sprintf("1700000000.%06d", len(f.messages)),
		})
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

type memoryStore struct {
	posts map[string]history.Post
}

func (m *memoryStore) IsPosted(_ context.Context, path string) (bool, error) {
	_, ok := m.posts[path]
	return ok, nil
}

func (m *memoryStore) RecordPost(_ context.Context, p history.Post) error {
	if m.posts == nil {
		m.posts = map[string]history.Post{}
	}
	m.posts[p.BriefPath] = p
	return nil
}

var fixedNow = time.Date(2025, 11, 13, 15, 4, 0, 0, time.UTC)

func TestPoster_PostBrief_Single(t *testing.T) {
	f, srv := newFakeSlack(t)
	store := &memoryStore{}
	p := NewPoster("xoxb-test", "#ai-brief",
		WithAPIURL(srv.URL),
		WithWebBaseURL("https://briefs.example.com/"),
		WithStore(store),
		WithClock(func() time.Time { return fixedNow }),
	)

	md := "# Weekly AI Brief — Nov 06–13\n\n## What this means for your team\n**Agents SDK** (Latent Space)\n\n---\n**Sources:**\n- Latent Space"
	ts, err := p.PostBrief(context.Background(), md, "/briefs/2025-11-13-weekly.md", "Nov 06–13")
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000001", ts)

	require.Len(t, f.messages, 2)
	first := f.messages[0]
	assert.Equal(t, "#ai-brief", first.Channel)
	assert.Empty(t, first.ThreadTS)
	assert.True(t, strings.HasPrefix(first.Text,
		"📊 *AI Pulse Brief* — Coverage: Nov 06–13\n🔗 <https://briefs.example.com/brief/2025-11-13|Read full brief on web>\n\n"))
	assert.Contains(t, first.Text, "*Weekly AI Brief — Nov 06–13*")
	assert.Contains(t, first.Text, "*Agents SDK* (Latent Space)")
	assert.NotContains(t, first.Text, "Sources")

	sources := f.messages[1]
	assert.Equal(t, ts, sources.ThreadTS)
	assert.True(t, strings.HasPrefix(sources.Text, "📚 *Sources*\n"))
	assert.Contains(t, sources.Text, "• Latent Space")

	post, ok := store.posts["/briefs/2025-11-13-weekly.md"]
	require.True(t, ok)
	assert.Equal(t, "C0123", post.Channel)
	assert.Equal(t, ts, post.ThreadTS)
	assert.Equal(t, fixedNow, post.PostedAt)
}

func TestPoster_PostBrief_AlreadyPosted(t *testing.T) {
	f, srv := newFakeSlack(t)
	store := &memoryStore{posts: map[string]history.Post{"/briefs/a.md": {}}}
	p := NewPoster("xoxb-test", "#ai-brief", WithAPIURL(srv.URL), WithStore(store))

	_, err := p.PostBrief(context.Background(), "# Brief", "/briefs/a.md", "Nov 06–13")
	assert.ErrorIs(t, err, ErrAlreadyPosted)
	assert.Empty(t, f.messages)
}

func TestPoster_PostBrief_UndatedHeader(t *testing.T) {
	f, srv := newFakeSlack(t)
	p := NewPoster("xoxb-test", "#ai-brief",
		WithAPIURL(srv.URL),
		WithClock(func() time.Time { return fixedNow }),
	)

	_, err := p.PostBrief(context.Background(), "# Brief\nbody", "/briefs/2025-11-13-weekly.md", "")
	require.NoError(t, err)

	require.Len(t, f.messages, 1)
	assert.Equal(t,
		"🤖 *AI Builder Brief* — November 13, 2025 at 15:04 UTC\n📄 _Saved to:_ `2025-11-13-weekly.md`\n\n*Brief*\nbody",
		f.messages[0].Text)
}

func TestPoster_PostBrief_LongBriefIsThreaded(t *testing.T) {
	f, srv := newFakeSlack(t)
	p := NewPoster("xoxb-test", "#ai-brief", WithAPIURL(srv.URL))

	var b strings.Builder
	b.WriteString("# Weekly AI Brief\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "## Section %d\n%s\n", i, strings.Repeat("word ", 200))
	}

	ts, err := p.PostBrief(context.Background(), b.String(), "", "Nov 06–13")
	require.NoError(t, err)

	require.Len(t, f.messages, 6)
	assert.Empty(t, f.messages[0].ThreadTS)
	assert.True(t, strings.HasPrefix(f.messages[0].Text, "📊 *AI Pulse Brief* — Coverage: Nov 06–13\n\n*Weekly AI Brief*"))
	for i, m := range f.messages[1:] {
		assert.Equal(t, ts, m.ThreadTS)
		assert.True(t, strings.HasPrefix(m.Text, fmt.Sprintf("*Section %d*", i)), m.Text)
	}
}

func TestPoster_ErrorHints(t *testing.T) {
	tests := []struct {
		code string
		hint string
	}{
		{code: "channel_not_found", hint: "make sure the channel #ai-brief exists"},
		{code: "not_in_channel", hint: "/invite @your-bot-name"},
		{code: "invalid_auth", hint: "invalid_auth"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f, srv := newFakeSlack(t)
			f.failWith = tt.code
			store := &memoryStore{}
			p := NewPoster("xoxb-test", "#ai-brief", WithAPIURL(srv.URL), WithStore(store))

			_, err := p.PostBrief(context.Background(), "# Brief", "/briefs/a.md", "Nov 06–13")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.code)
			assert.Contains(t, err.Error(), tt.hint)
			assert.Empty(t, store.posts)
		})
	}
}

func TestPoster_ReplyToThread(t *testing.T) {
	f, srv := newFakeSlack(t)
	p := NewPoster("xoxb-test", "#ai-brief", WithAPIURL(srv.URL))

	require.NoError(t, p.ReplyToThread(context.Background(), "1700000000.000001", "follow-up"))
	require.Len(t, f.messages, 1)
	assert.Equal(t, "1700000000.000001", f.messages[0].ThreadTS)
	assert.Equal(t, "follow-up", f.messages[0].Text)
}
