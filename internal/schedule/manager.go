package schedule

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner runs an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. The error includes the command's stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return stdout.String(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// DefaultPlistPath returns ~/Library/LaunchAgents/<label>.plist.
func DefaultPlistPath(label string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

// Manager controls the launchd agent.
type Manager struct {
	runner    Runner
	label     string
	plistPath string
}

// NewManager creates a Manager for the agent label whose plist lives at
// plistPath.
func NewManager(runner Runner, label, plistPath string) *Manager {
	return &Manager{runner: runner, label: label, plistPath: plistPath}
}

// PlistPath returns the plist location.
func (m *Manager) PlistPath() string {
	return m.plistPath
}

// Install writes the plist. It does not load it.
func (m *Manager) Install(plist string) error {
	if err := os.MkdirAll(filepath.Dir(m.plistPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(m.plistPath), err)
	}
	if err := os.WriteFile(m.plistPath, []byte(plist), 0644); err != nil {
		return fmt.Errorf("failed to write plist: %w", err)
	}
	return nil
}

// Start loads the agent.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := os.Stat(m.plistPath); err != nil {
		return fmt.Errorf("plist not installed at %s, run 'schedule install' first: %w", m.plistPath, err)
	}
	if _, err := m.runner.Run(ctx, "launchctl", "load", m.plistPath); err != nil {
		return fmt.Errorf("failed to start schedule: %w", err)
	}
	return nil
}

// Stop unloads the agent.
func (m *Manager) Stop(ctx context.Context) error {
	if _, err := m.runner.Run(ctx, "launchctl", "unload", m.plistPath); err != nil {
		return fmt.Errorf("failed to stop schedule: %w", err)
	}
	return nil
}

// Status reports whether launchctl lists the agent.
func (m *Manager) Status(ctx context.Context) (bool, error) {
	out, err := m.runner.Run(ctx, "launchctl", "list")
	if err != nil {
		return false, fmt.Errorf("failed to list launchd jobs: %w", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 && fields[len(fields)-1] == m.label {
			return true, nil
		}
	}
	return false, scanner.Err()
}
