// Package digest_tools provides MCP tools for inspecting and generating
// weekly newsletter briefs.
//
// Tools:
//   - digest_list_newsletters: newsletters in the current coverage window
//   - digest_latest_brief: the newest archived brief
//   - digest_generate_brief: run the pipeline, optionally posting to Slack
package digest_tools
