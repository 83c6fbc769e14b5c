package brief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/instrumentation"
	"github.com/sarahdorsten/newsletter-digest/internal/llm"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// previousBriefCount is how many archived briefs feed the continuity section.
const previousBriefCount = 3

// ErrNoNewsletters is returned when the coverage window holds no newsletters.
var ErrNoNewsletters = errors.New("no newsletters in the coverage window")

// MailSource fetches newsletters and context emails.
type MailSource interface {
	FetchNewsletters(ctx context.Context, window gmail.Window, query string) ([]*gmail.Newsletter, error)
	FetchContext(ctx context.Context, window gmail.Window, query string) ([]*gmail.ContextDoc, error)
}

// Brief is a generated weekly brief.
type Brief struct {
	Markdown string
	Window   Window
	// InWindow is the number of newsletters found in the coverage window.
	InWindow int
	Deep     []*gmail.Newsletter
	Summary  []*gmail.Newsletter
	// Ranking is nil when every newsletter was analyzed without a rank pass.
	Ranking *Ranking
}

// Generator runs the fetch, rank and analyze stages.
type Generator struct {
	cfg     *config.Config
	mail    MailSource
	llm     llm.Completer
	metrics *instrumentation.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithMetrics records per-stage newsletter counts.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a Generator. cfg must have been validated.
func NewGenerator(cfg *config.Config, mail MailSource, completer llm.Completer, opts ...Option) *Generator {
	g := &Generator{cfg: cfg, mail: mail, llm: completer}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the coverage window ending at now.
func (g *Generator) Window(now time.Time) Window {
	return CoverageWindow(now, g.cfg.Location(), g.cfg.WindowDays)
}

// Newsletters fetches the lookback period and keeps the items inside window.
func (g *Generator) Newsletters(ctx context.Context, window Window) (items []*gmail.Newsletter, err error) {
	ctx, span := instrumentation.StartStageSpan(ctx, "fetch")
	defer func() { instrumentation.EndSpan(span, err) }()

	fetched, err := g.mail.FetchNewsletters(ctx, gmail.LastDays(g.cfg.LookbackDays), g.cfg.NewsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch newsletters: %w", err)
	}
	items = FilterToWindow(fetched, window)

	g.metrics.RecordNewsletters(ctx, instrumentation.StageFetched, len(fetched))
	g.metrics.RecordNewsletters(ctx, instrumentation.StageInWindow, len(items))
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, len(items)))
	slog.Info("newsletters in window", logging.Stage("fetch"), "window", window.Display,
		"fetched", len(fetched), logging.Count(len(items)))
	return items, nil
}

// Rank runs the cheap relevance pass. An unparseable reply falls back to
// chronological order; API errors are returned.
func (g *Generator) Rank(ctx context.Context, items []*gmail.Newsletter, teamContext string) (r Ranking, err error) {
	ctx, span := instrumentation.StartStageSpan(ctx, "rank", attribute.Int(instrumentation.SpanAttrCount, len(items)))
	defer func() { instrumentation.EndSpan(span, err) }()

	prompt, err := rankPrompt(items, teamContext)
	if err != nil {
		return Ranking{}, err
	}

	req := llm.UserPrompt(g.cfg.Model, g.cfg.RankMaxTokens, 0, prompt)
	req.Operation = "rank"
	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		return Ranking{}, fmt.Errorf("rank pass failed: %w", err)
	}

	r, perr := ParseRanking(resp.Text, len(items))
	if perr != nil {
		slog.Warn("ranking reply not understood, using chronological order", logging.Stage("rank"), logging.Err(perr))
		return FallbackRanking(len(items)), nil
	}
	slog.Info("ranked newsletters", logging.Stage("rank"), "high", len(r.High), "medium", len(r.Medium))
	return r, nil
}

// Generate produces the brief for the window ending at now.
func (g *Generator) Generate(ctx context.Context, now time.Time) (*Brief, error) {
	window := g.Window(now)
	slog.Info("generating brief", logging.Operation("brief.generate"), "window", window.Display)

	var docs []*gmail.ContextDoc
	if g.cfg.ContextQuery != "" {
		var err error
		docs, err = g.mail.FetchContext(ctx, gmail.LastDays(g.cfg.WindowDays), g.cfg.ContextQuery)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch context emails: %w", err)
		}
	}
	teamContext := LoadTeamContext(g.cfg.Team, docs)
	previous := LoadPreviousBriefs(g.cfg.Output.Dir, previousBriefCount)

	items, err := g.Newsletters(ctx, window)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNoNewsletters
	}

	b := &Brief{Window: window, InWindow: len(items)}
	if len(items) > g.cfg.TwoStageThreshold {
		r, err := g.Rank(ctx, items, teamContext)
		if err != nil {
			return nil, err
		}
		b.Ranking = &r
		b.Deep, b.Summary = Select(items, r, g.cfg.DeepLimit, g.cfg.SummaryLimit)
	} else {
		b.Deep = items
	}
	g.metrics.RecordNewsletters(ctx, instrumentation.StageDeep, len(b.Deep))
	g.metrics.RecordNewsletters(ctx, instrumentation.StageSummary, len(b.Summary))

	b.Markdown, err = g.analyze(ctx, analysisInput{
		window:      window,
		teamContext: teamContext,
		previous:    previous,
		deep:        b.Deep,
		summary:     b.Summary,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (g *Generator) analyze(ctx context.Context, in analysisInput) (text string, err error) {
	ctx, span := instrumentation.StartStageSpan(ctx, "analyze",
		attribute.Int(instrumentation.SpanAttrCount, len(in.deep)+len(in.summary)))
	defer func() { instrumentation.EndSpan(span, err) }()

	prompt, err := analysisPrompt(in)
	if err != nil {
		return "", err
	}

	req := llm.UserPrompt(g.cfg.Model, g.cfg.AnalyzeMaxTokens, *g.cfg.AnalyzeTemperature, prompt)
	req.Operation = "analyze"
	slog.Info("analyzing newsletters", logging.Stage("analyze"), "deep", len(in.deep), "summary", len(in.summary))

	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("analysis pass failed: %w", err)
	}
	return resp.Text, nil
}
