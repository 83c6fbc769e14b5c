package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
	"github.com/sarahdorsten/newsletter-digest/internal/pipeline"
	"github.com/sarahdorsten/newsletter-digest/internal/schedule"
	"github.com/sarahdorsten/newsletter-digest/internal/server"
)

func newDaemonCmd() *cobra.Command {
	var (
		metricsAddr string
		runNow      bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the weekly schedule in-process",
		Long: `Run the digest on the cron schedule from the configuration (default
"0 8 * * 4", Thursdays at 08:00 in the configured timezone) and serve
Prometheus metrics and health endpoints.

Endpoints:
  /metrics           Prometheus metrics (when METRICS_EXPORTER=prometheus)
  /healthz           Liveness
  /readyz            Readiness
  /healthz/detailed  Uptime, last run and next scheduled run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == server.DefaultMetricsAddr {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					metricsAddr = addr
				}
			}
			return runDaemon(cmd.Context(), metricsAddr, runNow, dryRun)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Address for the metrics and health server")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run the digest once at startup in addition to the schedule")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Archive briefs without posting them to Slack")
	return cmd
}

func runDaemon(ctx context.Context, metricsAddr string, runNow, dryRun bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			slog.Warn("error during shutdown", logging.Err(err))
		}
	}()

	job := func(ctx context.Context) {
		res, err := a.pipeline.Run(ctx, pipeline.RunOptions{DryRun: dryRun})
		if err != nil {
			slog.Error("scheduled run failed", logging.Err(err))
			return
		}
		slog.Info("scheduled run finished",
			logging.RunID(res.RunID),
			slog.String("path", res.Path),
			slog.Bool("posted", res.Posted),
			slog.Bool("skipped", res.Skipped))
	}

	scheduler, err := schedule.NewCron(a.cfg.Schedule, a.cfg.Location(), job)
	if err != nil {
		return err
	}

	health := server.NewHealthChecker(a.history)
	health.SetNextRun(scheduler.Next)

	metricsServer := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    metricsAddr,
		InstrumentationProvider: a.provider,
		Health:                  health,
	})

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan string, 1)
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case addr := <-metricsReady:
		slog.Info("metrics server started", slog.String("addr", addr))
	case err := <-metricsErr:
		return fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("metrics server startup timed out")
	}

	scheduler.Start(shutdownCtx)
	health.SetReady(true)

	if runNow {
		go scheduler.RunNow()
	}

	select {
	case <-shutdownCtx.Done():
		slog.Info("shutdown signal received")
	case err, ok := <-metricsErr:
		if ok && err != nil {
			slog.Error("metrics server stopped", logging.Err(err))
		}
	}

	health.SetShuttingDown()
	scheduler.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()
	if err := metricsServer.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
