package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
	"github.com/sarahdorsten/newsletter-digest/internal/resources"
	"github.com/sarahdorsten/newsletter-digest/internal/tools/digest_tools"
)

func newServeCmd() *cobra.Command {
	var allowPost bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server on stdio.

Tools:
  digest_list_newsletters  Newsletters in the current coverage window
  digest_latest_brief      The newest archived brief
  digest_generate_brief    Run the pipeline (posts to Slack only with --allow-post)

Resources:
  digest://briefs/latest   The newest archived brief
  digest://runs/recent     Recent pipeline runs

Logs go to stderr so they never mix with the protocol stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), allowPost)
		},
	}

	cmd.Flags().BoolVar(&allowPost, "allow-post", false, "Allow digest_generate_brief to post to Slack")
	return cmd
}

func runServe(ctx context.Context, allowPost bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Warn("error during shutdown", logging.Err(err))
		}
	}()

	mcpSrv, err := newMCPServer(a.pipeline, a.history, digest_tools.Options{
		AllowPost: allowPost && a.poster != nil,
		Metrics:   a.provider.Metrics(),
	})
	if err != nil {
		return err
	}

	slog.Info("starting MCP server on stdio", slog.Bool("allow_post", allowPost))
	return runStdioServer(shutdownCtx, mcpSrv)
}

// newMCPServer creates the MCP server with all digest tools and resources.
// runs may be nil.
func newMCPServer(d digest_tools.Digest, runs resources.RunLister, opts digest_tools.Options) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("newsletter-digest", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	if err := digest_tools.RegisterDigestTools(mcpSrv, d, opts); err != nil {
		return nil, fmt.Errorf("failed to register digest tools: %w", err)
	}
	if err := resources.RegisterBriefResources(mcpSrv, d, runs); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
	case <-ctx.Done():
	}
	return nil
}

