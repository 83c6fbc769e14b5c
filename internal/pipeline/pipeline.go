// Package pipeline runs one weekly digest: generate, archive, deliver and
// record the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sarahdorsten/newsletter-digest/internal/brief"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/history"
	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
	"github.com/sarahdorsten/newsletter-digest/internal/slack"
)

// Generator produces briefs.
type Generator interface {
	Window(now time.Time) brief.Window
	Newsletters(ctx context.Context, window brief.Window) ([]*gmail.Newsletter, error)
	Generate(ctx context.Context, now time.Time) (*brief.Brief, error)
}

// Poster delivers a brief and returns its thread timestamp.
type Poster interface {
	PostBrief(ctx context.Context, markdown, briefPath, window string) (string, error)
}

// RunStore records runs.
type RunStore interface {
	StartRun(ctx context.Context, startedAt time.Time) (int64, error)
	FinishRun(ctx context.Context, id int64, result history.Result, finishedAt time.Time) error
}

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun archives the brief without posting it.
	DryRun bool
}

// Result describes a completed run.
type Result struct {
	RunID int64
	Brief *brief.Brief
	// Path is the archived brief, empty when the run was skipped.
	Path     string
	ThreadTS string
	Posted   bool
	// AlreadyPosted is set when an earlier run delivered the same brief.
	AlreadyPosted bool
	// Skipped is set when the window held no newsletters.
	Skipped bool
}

// Pipeline wires the generator, archive, poster and history together.
type Pipeline struct {
	gen     Generator
	archive *brief.Archive
	poster  Poster
	runs    RunStore
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPoster enables delivery. Without a poster briefs are only archived.
func WithPoster(p Poster) Option {
	return func(pl *Pipeline) { pl.poster = p }
}

// WithRunStore records every run.
func WithRunStore(s RunStore) Option {
	return func(pl *Pipeline) { pl.runs = s }
}

// WithMetrics records run metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// New creates a Pipeline.
func New(gen Generator, archive *brief.Archive, opts ...Option) *Pipeline {
	p := &Pipeline{gen: gen, archive: archive, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run generates, archives and delivers one brief.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (res *Result, err error) {
	start := p.now()
	res = &Result{}

	ctx, span := instrumentation.StartStageSpan(ctx, "run", attribute.Bool("digest.dry_run", opts.DryRun))
	status := history.StatusSuccess
	defer func() {
		if err != nil {
			status = history.StatusError
		}
		p.metrics.RecordRun(ctx, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	if p.runs != nil {
		id, serr := p.runs.StartRun(ctx, start)
		if serr != nil {
			slog.Warn("failed to record run start", logging.Err(serr))
		}
		res.RunID = id
		defer func() {
			p.finish(ctx, res, status, err)
		}()
	}
	logger := slog.With(logging.RunID(res.RunID))

	b, err := p.gen.Generate(ctx, start)
	if errors.Is(err, brief.ErrNoNewsletters) {
		logger.Warn("no newsletters in the coverage window, nothing to send")
		status = history.StatusSkipped
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Brief = b

	res.Path, err = p.archive.Save(b.Markdown, b.Window.End)
	if err != nil {
		return res, fmt.Errorf("failed to archive brief: %w", err)
	}
	logger.Info("brief saved", "path", res.Path)

	if opts.DryRun || p.poster == nil {
		logger.Info("delivery skipped", "dry_run", opts.DryRun)
		return res, nil
	}

	res.ThreadTS, err = p.poster.PostBrief(ctx, b.Markdown, res.Path, b.Window.Display)
	if errors.Is(err, slack.ErrAlreadyPosted) {
		logger.Info("brief already posted, skipping delivery", "path", res.Path)
		res.AlreadyPosted = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Posted = true
	return res, nil
}

func (p *Pipeline) finish(ctx context.Context, res *Result, status string, runErr error) {
	if res.RunID == 0 {
		return
	}
	r := history.Result{
		Status:    status,
		BriefPath: res.Path,
		Err:       runErr,
	}
	if runErr != nil {
		r.Status = history.StatusError
	}
	if res.Brief != nil {
		r.Window = res.Brief.Window.Display
		r.Newsletters = res.Brief.InWindow
	}
	if err := p.runs.FinishRun(context.WithoutCancel(ctx), res.RunID, r, p.now()); err != nil {
		slog.Warn("failed to record run result", logging.RunID(res.RunID), logging.Err(err))
	}
}

// Newsletters returns the coverage window ending now and the newsletters
// inside it.
func (p *Pipeline) Newsletters(ctx context.Context) (brief.Window, []*gmail.Newsletter, error) {
	w := p.gen.Window(p.now())
	items, err := p.gen.Newsletters(ctx, w)
	return w, items, err
}

// LatestBrief returns the path and content of the newest archived brief.
func (p *Pipeline) LatestBrief() (string, string, error) {
	return p.archive.Latest()
}
