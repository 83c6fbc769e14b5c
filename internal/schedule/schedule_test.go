package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPlist(t *testing.T) {
	cfg := DefaultPlistConfig("/usr/local/bin/newsletter-digest", "/Users/me/digest/config.yaml", "/Users/me/digest/logs")
	cfg.Environment = map[string]string{"PATH": "/usr/bin:/bin", "NOTE": "a&b"}

	out, err := RenderPlist(cfg)
	require.NoError(t, err)

	for _, want := range []string{
		"<string>com.newsletter-digest.weekly</string>",
		"<string>/usr/local/bin/newsletter-digest</string>\n        <string>run</string>\n        <string>--config</string>\n        <string>/Users/me/digest/config.yaml</string>",
		"<key>WorkingDirectory</key>\n    <string>/Users/me/digest</string>",
		"<key>Weekday</key>\n        <integer>4</integer>",
		"<key>Hour</key>\n        <integer>8</integer>",
		"<key>Minute</key>\n        <integer>0</integer>",
		"<string>/Users/me/digest/logs/weekly.out.log</string>",
		"<string>/Users/me/digest/logs/weekly.err.log</string>",
		"<key>NOTE</key>\n        <string>a&amp;b</string>\n        <key>PATH</key>",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
}

func TestRenderPlist_Invalid(t *testing.T) {
	valid := DefaultPlistConfig("/bin/digest", "/tmp/config.yaml", "/tmp/logs")

	noLabel := valid
	noLabel.Label = ""
	_, err := RenderPlist(noLabel)
	assert.Error(t, err)

	noArgs := valid
	noArgs.ProgramArguments = nil
	_, err = RenderPlist(noArgs)
	assert.Error(t, err)

	badHour := valid
	badHour.Hour = 24
	_, err = RenderPlist(badHour)
	assert.Error(t, err)
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.output, f.err
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "LaunchAgents", DefaultLabel+".plist")
	runner := &fakeRunner{}
	m := NewManager(runner, DefaultLabel, path)

	err := m.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule install")
	assert.Empty(t, runner.calls)

	require.NoError(t, m.Install("<plist/>"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<plist/>", string(data))

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Stop(ctx))
	assert.Equal(t, []call{
		{name: "launchctl", args: []string{"load", path}},
		{name: "launchctl", args: []string{"unload", path}},
	}, runner.calls)
}

func TestManager_Status(t *testing.T) {
	ctx := context.Background()
	list := "PID\tStatus\tLabel\n-\t0\tcom.apple.something\n123\t0\tcom.newsletter-digest.weekly\n"

	m := NewManager(&fakeRunner{output: list}, DefaultLabel, "/tmp/x.plist")
	active, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, active)

	m = NewManager(&fakeRunner{output: "PID\tStatus\tLabel\n-\t0\tcom.newsletter-digest.weekly.other\n"}, DefaultLabel, "/tmp/x.plist")
	active, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	m = NewManager(&fakeRunner{err: errors.New("launchctl: not found")}, DefaultLabel, "/tmp/x.plist")
	_, err = m.Status(ctx)
	assert.Error(t, err)
}

func TestManager_StopError(t *testing.T) {
	m := NewManager(&fakeRunner{err: errors.New("Could not find specified service")}, DefaultLabel, "/tmp/x.plist")
	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find specified service")
}

func TestExecRunner(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = ExecRunner{}.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestParseSpec(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	s, err := ParseSpec("0 8 * * 4")
	require.NoError(t, err)

	// Monday Nov 17 2025.
	next := s.Next(time.Date(2025, 11, 17, 12, 0, 0, 0, denver))
	want := time.Date(2025, 11, 20, 8, 0, 0, 0, denver)
	assert.True(t, want.Equal(next), "next run %s", next)

	_, err = ParseSpec("every thursday")
	assert.Error(t, err)
}

func TestCron(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	_, err = NewCron("61 * * * *", denver, func(context.Context) {})
	assert.Error(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	c, err := NewCron("0 8 * * 4", denver, func(ctx context.Context) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)
	assert.True(t, c.Next().IsZero())

	c.Start(context.Background())
	next := c.Next()
	assert.Equal(t, time.Thursday, next.In(denver).Weekday())
	assert.Equal(t, 8, next.In(denver).Hour())

	done := make(chan bool)
	go func() { done <- c.RunNow() }()
	<-started

	assert.False(t, c.RunNow())
	close(release)
	assert.True(t, <-done)

	c.Stop()
}

func TestCron_StopWaitsForRunNow(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	c, err := NewCron("0 8 * * 4", time.UTC, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		close(finished)
	})
	require.NoError(t, err)
	c.Start(context.Background())

	go c.RunNow()
	<-started

	c.Stop()
	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running job finished")
	}

	assert.False(t, c.RunNow())
}
