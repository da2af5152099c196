package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIdentity = "jane@example.com"
	testTool     = "inbox_sync_now"
)

func attrMap(attrs []slog.Attr) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		out[a.Key] = a.Value.String()
	}
	return out
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testTool)

	assert.Equal(t, testTool, ti.Tool)
	assert.False(t, ti.StartTime.IsZero())

	ti.CompleteSuccess()

	assert.True(t, ti.Success)
	assert.GreaterOrEqual(t, int64(ti.Duration), int64(0))
	assert.Empty(t, ti.Error)
	assert.Equal(t, StatusSuccess, ti.Status())
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testTool).CompleteWithError(errors.New("Not authenticated"))

	assert.False(t, ti.Success)
	assert.Equal(t, "Not authenticated", ti.Error)
	assert.Equal(t, StatusError, ti.Status())
}

func TestToolInvocation_LogAttrs_HidesIdentity(t *testing.T) {
	ti := NewToolInvocation(testTool).WithIdentity(testIdentity)
	ti.TraceID = "abc123"
	ti.CompleteWithError(errors.New("boom"))

	attrs := attrMap(ti.LogAttrs())

	assert.Equal(t, testTool, attrs["tool"])
	assert.Equal(t, "example.com", attrs["user_domain"])
	assert.Equal(t, "abc123", attrs["trace_id"])
	assert.Equal(t, "boom", attrs["error"])
	_, hasUser := attrs["user"]
	assert.False(t, hasUser, "cardinality-controlled attrs must not include the identity")
}

func TestToolInvocation_LogAuditAttrs_IncludesIdentity(t *testing.T) {
	ti := NewToolInvocation(testTool).WithIdentity(testIdentity)
	ti.SpanID = "span789"
	ti.CompleteSuccess()

	attrs := attrMap(ti.LogAuditAttrs())

	assert.Equal(t, testIdentity, attrs["user"])
	assert.Equal(t, "span789", attrs["span_id"])
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation(testTool).WithSpanContext(context.Background())

	assert.Empty(t, ti.TraceID)
	assert.Empty(t, ti.SpanID)
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true})
	al.LogToolInvocation(NewToolInvocation(testTool).WithIdentity(testIdentity).CompleteSuccess())
	al.LogToolInvocation(NewToolInvocation(testTool).CompleteWithError(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "tool_executed")
	assert.Contains(t, out, "tool_failed")
	assert.False(t, strings.Contains(out, testIdentity), "identity must be hidden without IncludePII")
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: true, IncludePII: true})
	al.LogToolInvocation(NewToolInvocation(testTool).WithIdentity(testIdentity).CompleteSuccess())

	assert.Contains(t, buf.String(), testIdentity)
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger, AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())

	assert.Empty(t, buf.String())
}

func TestAuditLogger_Nil(t *testing.T) {
	var al *AuditLogger
	require.NotPanics(t, func() {
		al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())
	})
}
