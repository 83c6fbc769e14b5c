package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/sarahdorsten/newsletter-digest/internal/brief"
	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/google"
	"github.com/sarahdorsten/newsletter-digest/internal/history"
	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/llm"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
	"github.com/sarahdorsten/newsletter-digest/internal/pipeline"
	"github.com/sarahdorsten/newsletter-digest/internal/slack"
)

// app holds everything a command needs to run the pipeline.
type app struct {
	cfg      *config.Config
	provider *instrumentation.Provider
	history  *history.Store
	poster   *slack.Poster
	pipeline *pipeline.Pipeline
}

// openHistory opens the run history database named by cfg.
func openHistory(cfg *config.Config) (*history.Store, error) {
	path := cfg.History.Path
	if path == "" {
		p, err := history.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return history.Open(path)
}

// newApp loads the configuration and wires the Gmail client, the language
// model, the archive, the Slack poster and the run history into a pipeline.
func newApp(ctx context.Context) (_ *app, err error) {
	cfg, err := config.Load(globalFlags.configPath)
	if err != nil {
		return nil, err
	}

	instrConfig := instrumentation.FromEnv()
	instrConfig.ServiceVersion = version
	instrConfig.Timezone = cfg.Timezone
	instrConfig.Model = cfg.Model
	instrConfig.Schedule = cfg.Schedule
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	a := &app{cfg: cfg, provider: provider}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	metrics := provider.Metrics()

	oauthConf, err := google.LoadOAuthConfig(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	httpClient, err := google.HTTPClient(ctx, oauthConf, google.NewTokenCache(cfg.Google.TokenFile),
		google.WithRefreshObserver(func(result string) {
			metrics.RecordOAuthTokenRefresh(ctx, result)
		}))
	if err != nil {
		return nil, err
	}
	mail, err := gmail.NewClient(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	mail = mail.WithMetrics(metrics)

	model, err := llm.NewClient(cfg.AnthropicAPIKey, llm.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	a.history, err = openHistory(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithRunStore(a.history),
		pipeline.WithMetrics(metrics),
	}
	if cfg.SlackEnabled() {
		slackOpts := []slack.Option{
			slack.WithStore(a.history),
			slack.WithMetrics(metrics),
			slack.WithWebBaseURL(cfg.Slack.WebBaseURL),
		}
		if cfg.Slack.APIURL != "" {
			slackOpts = append(slackOpts, slack.WithAPIURL(cfg.Slack.APIURL))
		}
		a.poster = slack.NewPoster(cfg.SlackBotToken, cfg.Slack.Channel, slackOpts...)
		opts = append(opts, pipeline.WithPoster(a.poster))
	} else {
		slog.Info("SLACK_BOT_TOKEN not set, briefs are only written to disk",
			slog.String("dir", cfg.Output.Dir))
	}

	gen := brief.NewGenerator(cfg, mail, model, brief.WithMetrics(metrics))
	a.pipeline = pipeline.New(gen, brief.NewArchive(cfg.Output), opts...)

	slog.Debug("pipeline ready",
		logging.Operation("wire"),
		slog.String("config", globalFlags.configPath),
		slog.Bool("slack", a.poster != nil),
		slog.String("model", cfg.Model))
	return a, nil
}

// Close releases the history database and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
