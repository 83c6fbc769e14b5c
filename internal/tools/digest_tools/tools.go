package digest_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sarahdorsten/newsletter-digest/internal/brief"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/pipeline"
	"github.com/sarahdorsten/newsletter-digest/internal/tools/common"
)

// Digest is the pipeline surface the tools use.
type Digest interface {
	Newsletters(ctx context.Context) (brief.Window, []*gmail.Newsletter, error)
	LatestBrief() (string, string, error)
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Options controls tool registration.
type Options struct {
	// AllowPost lets digest_generate_brief deliver to Slack.
	AllowPost bool
	Metrics   *instrumentation.Metrics
}

// RegisterDigestTools registers all digest tools with the MCP server.
func RegisterDigestTools(s *mcpserver.MCPServer, d Digest, opts Options) error {
	if d == nil {
		return fmt.Errorf("digest service is required")
	}

	listTool := mcp.NewTool("digest_list_newsletters",
		mcp.WithDescription("List the newsletters received in the current coverage window (the past week)"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("digest_list_newsletters", opts.Metrics, listNewsletters(d)))

	latestTool := mcp.NewTool("digest_latest_brief",
		mcp.WithDescription("Return the newest archived weekly brief as Markdown"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(latestTool, common.InstrumentedToolHandler("digest_latest_brief", opts.Metrics, latestBrief(d)))

	generateTool := mcp.NewTool("digest_generate_brief",
		mcp.WithDescription("Generate this week's brief from Gmail and archive it. Takes a few minutes."),
		mcp.WithBoolean("post",
			mcp.Description("Also post the brief to Slack (default: false). Requires the server to allow posting."),
		),
	)
	s.AddTool(generateTool, common.InstrumentedToolHandler("digest_generate_brief", opts.Metrics, generateBrief(d, opts.AllowPost)))

	return nil
}

type newsletterSummary struct {
	Title  string    `json:"title"`
	Source string    `json:"source"`
	Date   time.Time `json:"date"`
	Link   string    `json:"link"`
}

type newsletterList struct {
	Window      string              `json:"window"`
	Count       int                 `json:"count"`
	Newsletters []newsletterSummary `json:"newsletters"`
}

func listNewsletters(d Digest) common.ToolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		window, items, err := d.Newsletters(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list newsletters: %v", err)), nil
		}

		out := newsletterList{
			Window:      window.Display,
			Count:       len(items),
			Newsletters: make([]newsletterSummary, 0, len(items)),
		}
		for _, it := range items {
			out.Newsletters = append(out.Newsletters, newsletterSummary{
				Title:  it.Title,
				Source: it.Source,
				Date:   it.Date.UTC(),
				Link:   it.Link(),
			})
		}

		result, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

func latestBrief(d Digest) common.ToolHandler {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, content, err := d.LatestBrief()
		if errors.Is(err, brief.ErrNoBriefs) {
			return mcp.NewToolResultError("No briefs archived yet. Run digest_generate_brief first."), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to read latest brief: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("<!-- %s -->\n%s", path, content)), nil
	}
}

type generateResult struct {
	RunID    int64  `json:"run_id"`
	Window   string `json:"window,omitempty"`
	Path     string `json:"path,omitempty"`
	Posted   bool   `json:"posted"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Brief    string `json:"brief,omitempty"`
}

func generateBrief(d Digest, allowPost bool) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		post := request.GetBool("post", false)
		if post && !allowPost {
			return mcp.NewToolResultError("Posting to Slack is disabled for this server. Restart it with --allow-post or call without post=true."), nil
		}

		res, err := d.Run(ctx, pipeline.RunOptions{DryRun: !post})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to generate brief: %v", err)), nil
		}

		out := generateResult{
			RunID:    res.RunID,
			Path:     res.Path,
			Posted:   res.Posted,
			ThreadTS: res.ThreadTS,
			Skipped:  res.Skipped,
		}
		if res.Brief != nil {
			out.Window = res.Brief.Window.Display
			out.Brief = res.Brief.Markdown
		}

		result, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}
