// Package history records pipeline runs and Slack deliveries in a local
// SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// ErrRunNotFound is returned by FinishRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one pipeline execution.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	Window      string
	Newsletters int
	BriefPath   string
	Error       string
}

// Duration returns how long a finished run took, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Result is the outcome recorded by FinishRun.
type Result struct {
	Status      string
	Window      string
	Newsletters int
	BriefPath   string
	Err         error
}

// Post is a brief delivered to Slack.
type Post struct {
	BriefPath string
	Channel   string
	ThreadTS  string
	PostedAt  time.Time
}

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns <user cache dir>/newsletter-digest/history.db.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(dir, "newsletter-digest", "history.db"), nil
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a running row and returns its id.
func (s *Store) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, status) VALUES (?, ?)`,
		startedAt.UnixMilli(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stores the outcome of run id.
func (s *Store) FinishRun(ctx context.Context, id int64, result Result, finishedAt time.Time) error {
	var msg string
	if result.Err != nil {
		msg = result.Err.Error()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, coverage = ?, newsletters = ?, brief_path = ?, error = ?
		WHERE id = ?
	`, finishedAt.UnixMilli(), result.Status, result.Window, result.Newsletters, result.BriefPath, msg, id)
	if err != nil {
		return fmt.Errorf("failed to record run result: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, coverage, newsletters, brief_path, error
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Window, &r.Newsletters, &r.BriefPath, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the newest run, or nil when none has been recorded.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RecordPost marks a brief as delivered. A brief that is already recorded
// keeps its original thread.
func (s *Store) RecordPost(ctx context.Context, p Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posts (brief_path, channel, thread_ts, posted_at)
		VALUES (?, ?, ?, ?)
	`, p.BriefPath, p.Channel, p.ThreadTS, p.PostedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record post: %w", err)
	}
	return nil
}

// IsPosted reports whether the brief at path was already delivered.
func (s *Store) IsPosted(ctx context.Context, briefPath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE brief_path = ?`, briefPath).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query posts: %w", err)
	}
	return n > 0, nil
}

// GetPost returns the delivery record for a brief, or nil when it was never
// posted.
func (s *Store) GetPost(ctx context.Context, briefPath string) (*Post, error) {
	p := Post{BriefPath: briefPath}
	var postedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT channel, thread_ts, posted_at FROM posts WHERE brief_path = ?`, briefPath,
	).Scan(&p.Channel, &p.ThreadTS, &postedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query post: %w", err)
	}
	p.PostedAt = time.UnixMilli(postedAt)
	return &p, nil
}
