// Package cmd implements the command-line interface for inboxagent.
//
// This package provides the following commands:
//   - chat: Interactive conversation with the agent (default)
//   - run: Run a single prompt and print its progress
//   - serve: Start the HTTP API, the DOM bridge socket and the metrics server
//   - mcp: Serve the tool catalog over MCP stdio
//   - auth: Authorize Gmail access and inspect the stored token
//   - prompts: Manage saved prompts
//   - generate-docs: Generate markdown documentation for the tool catalog
//
// The chat command is the default command when no subcommand is specified.
package cmd
