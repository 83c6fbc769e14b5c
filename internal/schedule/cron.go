package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Cron runs a Job on a standard five-field cron spec in a fixed time zone.
// A tick that fires while the previous run is still going is skipped.
type Cron struct {
	engine  *cron.Cron
	entry   cron.EntryID
	job     Job
	running atomic.Bool
	jobs    sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// ParseSpec validates a five-field cron spec.
func ParseSpec(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// NewCron creates a scheduler for spec evaluated in loc.
func NewCron(spec string, loc *time.Location, job Job) (*Cron, error) {
	if _, err := ParseSpec(spec); err != nil {
		return nil, err
	}

	logger := cronLogger{}
	c := &Cron{
		engine: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		job: job,
		ctx: context.Background(),
	}

	entry, err := c.engine.AddFunc(spec, func() { c.RunNow() })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	c.entry = entry
	return c, nil
}

// Start begins scheduling. Jobs receive a context derived from ctx that is
// cancelled by Stop.
func (c *Cron) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.engine.Start()
	slog.Info("scheduler started", "next_run", c.Next())
}

// Stop stops scheduling, cancels a running job and waits for it to return,
// including jobs started with RunNow. RunNow does nothing after Stop.
func (c *Cron) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	<-c.engine.Stop().Done()
	c.jobs.Wait()
	slog.Info("scheduler stopped")
}

// Next returns the next scheduled run, or the zero time before Start.
func (c *Cron) Next() time.Time {
	return c.engine.Entry(c.entry).Next
}

// RunNow runs the job immediately unless a run is already in progress or
// the scheduler was stopped. It reports whether the job ran.
func (c *Cron) RunNow() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	ctx := c.ctx
	c.jobs.Add(1)
	c.mu.Unlock()
	defer c.jobs.Done()

	if !c.running.CompareAndSwap(false, true) {
		slog.Warn("previous run still in progress, skipping")
		return false
	}
	defer c.running.Store(false)

	c.job(ctx)
	return true
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, logging.Err(err))...)
}
