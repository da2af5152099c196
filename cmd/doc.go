// Package cmd implements the command-line interface for rapture-inbox.
//
// This package provides the following commands:
//   - sync: Move pending notes from the Drive mailbox into the vault once
//   - watch: Poll the mailbox on an interval, reloading config changes
//   - serve: Start the MCP server to provide tools for AI assistants
//   - login, callback, logout: Manage the Google Drive connection
//   - status: Show sign-in state, last sync and recent runs
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The sync command is the default command when no subcommand is specified.
package cmd
