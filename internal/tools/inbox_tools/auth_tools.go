package inbox_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rapture-inbox/internal/server"
	"github.com/teemow/rapture-inbox/internal/tools/common"
)

func registerAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	authStatusTool := mcp.NewTool("inbox_auth_status",
		mcp.WithDescription("Show which Google account the Rapture inbox is connected to and when its access token expires"),
	)
	s.AddTool(authStatusTool, common.InstrumentedToolHandler("inbox_auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthStatus(ctx, request, sc)
		}))

	authURLTool := mcp.NewTool("inbox_auth_url",
		mcp.WithDescription("Get the Google consent URL to connect the Rapture inbox"),
	)
	s.AddTool(authURLTool, common.InstrumentedToolHandler("inbox_auth_url", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAuthURL(ctx, request, sc)
		}))

	if readOnly {
		return
	}

	completeTool := mcp.NewTool("inbox_complete_login",
		mcp.WithDescription("Finish connecting the Rapture inbox with the redirect URI (or bare code) returned after consent"),
		mcp.WithString("redirect",
			mcp.Required(),
			mcp.Description("The full obsidian://rapture-inbox?code=... redirect URI, or just the code=... query"),
		),
	)
	s.AddTool(completeTool, common.InstrumentedToolHandler("inbox_complete_login", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCompleteLogin(ctx, request, sc)
		}))

	logoutTool := mcp.NewTool("inbox_logout",
		mcp.WithDescription("Disconnect the Rapture inbox and forget the stored credentials"),
	)
	s.AddTool(logoutTool, common.InstrumentedToolHandler("inbox_logout", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sc.App().Logout(ctx)
			return mcp.NewToolResultText("Disconnected from Google Drive"), nil
		}))
}

func handleAuthStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	st := sc.App().Status()
	if !st.Authenticated {
		return mcp.NewToolResultText(st.ConnectionText() + "\nCall inbox_auth_url to connect."), nil
	}

	text := st.ConnectionText()
	if !st.TokenExpiry.IsZero() {
		text += fmt.Sprintf("\nAccess token expires: %s", st.TokenExpiry.Local().Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(text), nil
}

func handleAuthURL(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	authURL := sc.App().AuthURL("rapture-inbox")

	result := fmt.Sprintf(`To connect the Rapture inbox:

1. Visit this URL in your browser:
   %s

2. Sign in with the Google account your Rapture mailbox lives in
3. Grant access to files created by Rapture
4. Copy the redirect URI the browser tries to open

5. Call the inbox_complete_login tool with that URI to finish`, authURL)

	return mcp.NewToolResultText(result), nil
}

func handleCompleteLogin(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	redirect, err := request.RequireString("redirect")
	if err != nil || redirect == "" {
		return mcp.NewToolResultError("redirect is required"), nil
	}

	if err := sc.App().CompleteLogin(ctx, redirect); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to connect: %v", err)), nil
	}

	return mcp.NewToolResultText(sc.App().Status().ConnectionText()), nil
}
