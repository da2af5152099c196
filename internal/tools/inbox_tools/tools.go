package inbox_tools

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/rapture-inbox/internal/server"
)

// RegisterInboxTools registers all inbox tools with the MCP server.
func RegisterInboxTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	registerSyncTools(s, sc, readOnly)
	registerAuthTools(s, sc, readOnly)
	return nil
}
