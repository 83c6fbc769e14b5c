package brief

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// ErrNoBriefs is returned by Latest when the archive is empty.
var ErrNoBriefs = errors.New("no briefs archived yet")

// Archive stores briefs as Markdown files.
type Archive struct {
	dir     string
	mirrors []string
}

// NewArchive creates an archive for the output settings.
func NewArchive(out config.OutputConfig) *Archive {
	return &Archive{dir: out.Dir, mirrors: out.MirrorDirs}
}

// Dir returns the primary archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// FileName returns the archive file name for a brief generated at t.
func FileName(t time.Time) string {
	return t.Format("2006-01-02") + "-weekly.md"
}

// Save writes markdown to <dir>/<YYYY-MM-DD>-weekly.md and copies it into
// every mirror directory. It returns the primary path. A failed mirror write
// is logged and does not fail the save.
func (a *Archive) Save(markdown string, now time.Time) (string, error) {
	name := FileName(now)
	path := filepath.Join(a.dir, name)
	if err := writeFile(path, markdown); err != nil {
		return "", err
	}

	for _, dir := range a.mirrors {
		mirror := filepath.Join(dir, name)
		if err := writeFile(mirror, markdown); err != nil {
			slog.Warn("failed to mirror brief", "path", mirror, logging.Err(err))
			continue
		}
		slog.Debug("mirrored brief", "path", mirror)
	}
	return path, nil
}

// Latest returns the path and content of the newest archived brief.
func (a *Archive) Latest() (string, string, error) {
	files, err := newestMarkdown(a.dir, 1)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", ErrNoBriefs
		}
		return "", "", fmt.Errorf("failed to list briefs: %w", err)
	}
	if len(files) == 0 {
		return "", "", ErrNoBriefs
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		return "", "", fmt.Errorf("failed to read brief: %w", err)
	}
	return files[0], string(data), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
