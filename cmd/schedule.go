package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/config"
	"github.com/sarahdorsten/newsletter-digest/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the weekly launchd agent",
		Long: `Install and control a launchd agent that runs the digest every Thursday
at 08:00. On hosts without launchd use the daemon command instead.`,
	}
	cmd.PersistentFlags().StringVar(&label, "label", schedule.DefaultLabel, "launchd job label")

	manager := func() (*schedule.Manager, error) {
		path, err := schedule.DefaultPlistPath(label)
		if err != nil {
			return nil, err
		}
		return schedule.NewManager(schedule.ExecRunner{}, label, path), nil
	}

	cmd.AddCommand(newScheduleInstallCmd(&label, manager))
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Load the agent so it runs on schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Weekly brief scheduling started")
			fmt.Fprintf(cmd.OutOrStdout(), "Next run: %s\n", describeSchedule())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Unload the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Weekly brief scheduling stopped")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the agent is loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			active, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !active {
				fmt.Fprintln(out, "Weekly brief scheduling is NOT running")
				return nil
			}
			fmt.Fprintln(out, "Weekly brief scheduling is ACTIVE")
			fmt.Fprintf(out, "Next run: %s\n", describeSchedule())
			fmt.Fprintf(out, "Plist: %s\n", m.PlistPath())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Run the digest immediately, as the agent would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), false)
		},
	})

	return cmd
}

func newScheduleInstallCmd(label *string, manager func() (*schedule.Manager, error)) *cobra.Command {
	var (
		logDir string
		start  bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Write the launchd plist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(globalFlags.configPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to locate executable: %w", err)
			}
			configPath, err := filepath.Abs(globalFlags.configPath)
			if err != nil {
				return fmt.Errorf("failed to resolve config path: %w", err)
			}
			if logDir == "" {
				logDir = filepath.Join(cfg.Dir, "logs")
			}
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}

			pc := schedule.DefaultPlistConfig(exe, configPath, logDir)
			pc.Label = *label
			plist, err := schedule.RenderPlist(pc)
			if err != nil {
				return err
			}

			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Install(plist); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Installed %s\n", m.PlistPath())
			fmt.Fprintf(out, "Logs: %s\n", logDir)

			if !start {
				return nil
			}
			if err := m.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Next run: %s\n", describeSchedule())
			return nil
		},
	}

	cmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for the agent's stdout and stderr logs (default: <config dir>/logs)")
	cmd.Flags().BoolVar(&start, "start", false, "Load the agent after installing it")
	return cmd
}

// describeSchedule renders the launchd calendar interval, e.g. "Thursday at 08:00".
func describeSchedule() string {
	return fmt.Sprintf("%s at %02d:%02d",
		time.Weekday(schedule.DefaultWeekday), schedule.DefaultHour, schedule.DefaultMinute)
}
