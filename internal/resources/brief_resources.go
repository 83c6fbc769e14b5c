package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sarahdorsten/newsletter-digest/internal/history"
)

const (
	LatestBriefURI = "digest://briefs/latest"
	RecentRunsURI  = "digest://runs/recent"

	recentRunsLimit = 10
)

// BriefSource returns the newest archived brief.
type BriefSource interface {
	LatestBrief() (string, string, error)
}

// RunLister returns recent pipeline runs.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]history.Run, error)
}

// RegisterBriefResources registers the latest brief resource and, when runs
// is non-nil, the run history resource.
func RegisterBriefResources(s *mcpserver.MCPServer, briefs BriefSource, runs RunLister) error {
	if briefs == nil {
		return fmt.Errorf("brief source is required")
	}

	latest := mcp.NewResource(
		LatestBriefURI,
		"Latest Weekly Brief",
		mcp.WithResourceDescription("The newest archived weekly brief in Markdown"),
		mcp.WithMIMEType("text/markdown"),
	)
	s.AddResource(latest, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleLatestBrief(request, briefs)
	})

	if runs != nil {
		recent := mcp.NewResource(
			RecentRunsURI,
			"Recent Digest Runs",
			mcp.WithResourceDescription("The most recent pipeline runs with status and output path"),
			mcp.WithMIMEType("application/json"),
		)
		s.AddResource(recent, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return handleRecentRuns(ctx, request, runs)
		})
	}

	return nil
}

func handleLatestBrief(request mcp.ReadResourceRequest, briefs BriefSource) ([]mcp.ResourceContents, error) {
	_, content, err := briefs.LatestBrief()
	if err != nil {
		return nil, fmt.Errorf("failed to read latest brief: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/markdown",
			Text:     content,
		},
	}, nil
}

type runEntry struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Status      string    `json:"status"`
	Window      string    `json:"window,omitempty"`
	Newsletters int       `json:"newsletters"`
	BriefPath   string    `json:"brief_path,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func handleRecentRuns(ctx context.Context, request mcp.ReadResourceRequest, runs RunLister) ([]mcp.ResourceContents, error) {
	recent, err := runs.RecentRuns(ctx, recentRunsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	entries := make([]runEntry, 0, len(recent))
	for _, r := range recent {
		e := runEntry{
			ID:          r.ID,
			StartedAt:   r.StartedAt.UTC(),
			Status:      r.Status,
			Window:      r.Window,
			Newsletters: r.Newsletters,
			BriefPath:   r.BriefPath,
			Error:       r.Error,
		}
		if d := r.Duration(); d > 0 {
			e.Duration = d.Round(time.Second).String()
		}
		entries = append(entries, e)
	}

	jsonData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runs: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
