// Package resources exposes archived briefs and run history as MCP resources.
// Resources are read-only data sources that MCP clients can fetch without
// invoking a tool.
package resources
