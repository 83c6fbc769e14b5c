package resources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarahdorsten/newsletter-digest/internal/history"
)

type fakeBriefs struct {
	content string
	err     error
}

func (f fakeBriefs) LatestBrief() (string, string, error) {
	return "/briefs/latest.md", f.content, f.err
}

type fakeRuns struct {
	runs  []history.Run
	limit int
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]history.Run, error) {
	f.limit = limit
	return f.runs, nil
}

func readRequest(uri string) mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return req
}

func TestRegisterBriefResources(t *testing.T) {
	assert.Error(t, RegisterBriefResources(nil, nil, nil))
}

func TestHandleLatestBrief(t *testing.T) {
	contents, err := handleLatestBrief(readRequest(LatestBriefURI), fakeBriefs{content: "# Weekly"})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, LatestBriefURI, text.URI)
	assert.Equal(t, "text/markdown", text.MIMEType)
	assert.Equal(t, "# Weekly", text.Text)

	_, err = handleLatestBrief(readRequest(LatestBriefURI), fakeBriefs{err: errors.New("boom")})
	assert.ErrorContains(t, err, "boom")
}

func TestHandleRecentRuns(t *testing.T) {
	started := time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)
	runs := &fakeRuns{runs: []history.Run{
		{ID: 2, StartedAt: started, FinishedAt: started.Add(95 * time.Second), Status: history.StatusSuccess, Window: "Nov 13–20", Newsletters: 12, BriefPath: "/b.md"},
		{ID: 1, StartedAt: started.Add(-7 * 24 * time.Hour), Status: history.StatusRunning},
	}}

	contents, err := handleRecentRuns(context.Background(), readRequest(RecentRunsURI), runs)
	require.NoError(t, err)
	assert.Equal(t, recentRunsLimit, runs.limit)

	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)

	var entries []runEntry
	require.NoError(t, json.Unmarshal([]byte(text.Text), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "1m35s", entries[0].Duration)
	assert.Equal(t, 12, entries[0].Newsletters)
	assert.Empty(t, entries[1].Duration)
}
