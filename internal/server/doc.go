// Package server provides the shared MCP server context and the HTTP side of
// the watch daemon.
//
// # Key Components
//
// ServerContext carries the assembled inbox service together with the
// optional metrics recorder and audit logger used by instrumented MCP tools.
//
// MetricsServer serves Prometheus metrics on a dedicated port. When given a
// HealthChecker it also serves:
//   - /healthz: liveness
//   - /readyz: readiness, failing while signed out or shutting down
//   - /healthz/detailed: sync status, last sync time and uptime
package server
