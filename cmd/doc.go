// Package cmd implements the command-line interface for newsletter-digest.
//
// This package provides the following commands:
//   - run: Generate this week's brief and deliver it (default)
//   - auth: Authorize Gmail access in the browser
//   - schedule: Manage the weekly launchd agent
//   - daemon: Run the weekly schedule in-process with a metrics and health server
//   - serve: Start the MCP server to provide tools for AI assistants
//   - history: Show recent pipeline runs
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
