package brief

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
)

func TestArchive_SaveAndLatest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "weekly")
	mirror := filepath.Join(t.TempDir(), "obsidian", "briefs")
	archive := NewArchive(config.OutputConfig{Dir: dir, MirrorDirs: []string{mirror}})

	_, _, err := archive.Latest()
	assert.ErrorIs(t, err, ErrNoBriefs)

	first := time.Date(2025, 11, 13, 8, 0, 0, 0, time.UTC)
	path, err := archive.Save("# first", first)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025-11-13-weekly.md"), path)
	require.NoError(t, os.Chtimes(path, first, first))

	data, err := os.ReadFile(filepath.Join(mirror, "2025-11-13-weekly.md"))
	require.NoError(t, err)
	assert.Equal(t, "# first", string(data))

	second := first.AddDate(0, 0, 7)
	path, err = archive.Save("# second", second)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, second, second))

	latest, content, err := archive.Latest()
	require.NoError(t, err)
	assert.Equal(t, path, latest)
	assert.Equal(t, "# second", content)
}

func TestArchive_MirrorFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	archive := NewArchive(config.OutputConfig{Dir: dir, MirrorDirs: []string{filepath.Join(blocker, "sub")}})
	path, err := archive.Save("# brief", time.Date(2025, 11, 13, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestArchive_SaveFailsOnBadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	archive := NewArchive(config.OutputConfig{Dir: blocker})
	_, err := archive.Save("# brief", time.Now())
	assert.Error(t, err)
}
