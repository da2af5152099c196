// Package inbox_tools exposes the inbox service as MCP tools.
//
// Read-only tools report sync status, sign-in state and recent run history.
// The remaining tools trigger a sync or change the stored credentials and
// are left out in read-only mode.
package inbox_tools
