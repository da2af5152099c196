// Package instrumentation provides OpenTelemetry instrumentation for
// rapture-inbox.
//
// # Metrics
//
// Sync engine:
//   - sync_runs_total: Counter of drain runs by result (success, partial, aborted, busy)
//   - sync_run_duration_seconds: Histogram of drain run durations
//   - sync_files_total: Counter of mailbox files by outcome
//
// Drive API:
//   - drive_api_operations_total: Counter of Drive operations by operation and status
//   - drive_api_operation_duration_seconds: Histogram of Drive operation durations
//
// OAuth:
//   - oauth_token_refresh_total: Counter of refresh attempts by result
//   - oauth_code_exchange_total: Counter of authorization code exchanges by result
//
// MCP tools:
//   - mcp_tool_invocations_total: Counter of tool invocations by tool and status
//   - mcp_tool_duration_seconds: Histogram of tool durations
//
// # Configuration
//
// Instrumentation is configured through environment variables:
//
//	INSTRUMENTATION_ENABLED=true          # default true
//	METRICS_EXPORTER=prometheus           # prometheus, otlp, stdout
//	TRACING_EXPORTER=none                 # otlp, stdout, none
//	OTEL_EXPORTER_OTLP_ENDPOINT=host:4318 # required for otlp
//	OTEL_TRACES_SAMPLER_ARG=0.1
//	AUDIT_LOGGING_ENABLED=true
//	AUDIT_LOGGING_INCLUDE_PII=false
//
// # Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSyncRun(ctx, instrumentation.RunResultSuccess, time.Since(start))
package instrumentation
