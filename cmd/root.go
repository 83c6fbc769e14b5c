package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarahdorsten/newsletter-digest/internal/logging"
)

// rootCmd represents the base command for the newsletter-digest application
var rootCmd = &cobra.Command{
	Use:   "newsletter-digest",
	Short: "Turns a week of AI newsletters into a team brief",
	Long: `newsletter-digest reads the newsletters in your Gmail from the past week,
ranks them against your team's context with a cheap model pass, analyzes the
most relevant ones in depth and delivers a Markdown brief to Slack or a local
file.

It can run as:
  - A one-shot CLI run (default)
  - A long-running daemon with its own weekly schedule
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := globalFlags.logLevel
		if globalFlags.debug {
			level = "debug"
		}
		_, err := logging.Setup(os.Stderr, level, globalFlags.logFormat)
		return err
	},
}

var globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	debug      bool
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "newsletter-digest version %s\n" .Version}}`)

	// If no subcommand is provided, run the pipeline by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&globalFlags.configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	pf.StringVar(&globalFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&globalFlags.logFormat, "log-format", logging.FormatText, "Log format (text, json)")
	pf.BoolVar(&globalFlags.debug, "debug", false, "Shorthand for --log-level=debug")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
