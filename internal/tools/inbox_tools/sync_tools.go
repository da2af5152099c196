package inbox_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rapture-inbox/internal/history"
	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/server"
	"github.com/teemow/rapture-inbox/internal/tools/common"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

func registerSyncTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	statusTool := mcp.NewTool("inbox_sync_status",
		mcp.WithDescription("Show whether a Rapture inbox sync is running, when the last sync succeeded and where notes are written"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("inbox_sync_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSyncStatus(ctx, request, sc)
		}))

	historyTool := mcp.NewTool("inbox_history",
		mcp.WithDescription("List recent Rapture inbox sync runs with the notes each run transferred"),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of runs to return (default %d, max %d)", defaultHistoryLimit, maxHistoryLimit)),
		),
	)
	s.AddTool(historyTool, common.InstrumentedToolHandler("inbox_history", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleHistory(ctx, request, sc)
		}))

	if readOnly {
		return
	}

	syncTool := mcp.NewTool("inbox_sync_now",
		mcp.WithDescription("Move every pending Rapture note from the Drive mailbox into the vault now"),
	)
	s.AddTool(syncTool, common.InstrumentedToolHandler("inbox_sync_now", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSyncNow(ctx, request, sc)
		}))
}

func handleSyncNow(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	result := sc.App().ManualSync(ctx)

	body, _ := json.MarshalIndent(result, "", "  ")
	text := fmt.Sprintf("%s\n%s", inbox.Summary(result), body)

	if !result.Success() {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func handleSyncStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.App().Status()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", st.ConnectionText())
	fmt.Fprintf(&b, "Sync status: %s\n", st.SyncStatus)
	fmt.Fprintf(&b, "%s\n", st.LastSyncText(time.Now()))
	fmt.Fprintf(&b, "Destination: %s\n", st.Destination)
	fmt.Fprintf(&b, "Sync interval: %s\n", st.SyncInterval)

	return mcp.NewToolResultText(b.String()), nil
}

func handleHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	store := sc.App().History()
	if store == nil {
		return mcp.NewToolResultError("Sync history is disabled"), nil
	}

	limit := request.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read sync history: %v", err)), nil
	}
	if runs == nil {
		runs = []history.RunSummary{}
	}

	result, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(result)), nil
}
