// Package common provides shared helpers for the MCP tool packages.
package common
