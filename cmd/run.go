package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate this week's brief and deliver it",
		Long: `Fetch the newsletters received in the past week, rank and analyze them,
archive the brief as Markdown and post it to Slack.

Without SLACK_BOT_TOKEN, or with --dry-run, the brief is only written to the
output directory and printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runOnce(ctx, cmd.OutOrStdout(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write and print the brief without posting to Slack")
	return cmd
}

// runOnce builds the pipeline, runs it a single time and reports the result to out.
func runOnce(ctx context.Context, out io.Writer, dryRun bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			slog.Warn("shutdown failed", slog.Any("error", err))
		}
	}()

	res, err := a.pipeline.Run(ctx, pipeline.RunOptions{DryRun: dryRun})
	if err != nil {
		return err
	}
	printResult(out, res, dryRun)
	return nil
}

func printResult(out io.Writer, res *pipeline.Result, dryRun bool) {
	switch {
	case res.Skipped:
		fmt.Fprintln(out, "No newsletters in the coverage window, nothing to do.")
		return
	case dryRun || !res.Posted && !res.AlreadyPosted:
		fmt.Fprintln(out, res.Brief.Markdown)
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Brief saved to %s\n", res.Path)
	switch {
	case res.Posted:
		fmt.Fprintf(out, "Posted to Slack (thread %s)\n", res.ThreadTS)
	case res.AlreadyPosted:
		fmt.Fprintln(out, "Already posted to Slack, delivery skipped")
	}
}
