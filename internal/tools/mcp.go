package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterMCP adds every tool of the catalog to s. Results are returned as
// JSON text; dispatch errors become tool errors rather than protocol errors.
func (r *Registry) RegisterMCP(s *mcpserver.MCPServer) {
	tools := make([]mcpserver.ServerTool, 0, len(r.defs))
	for _, t := range r.defs {
		name := t.Name
		tools = append(tools, mcpserver.ServerTool{
			Tool: t,
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return r.callMCP(ctx, name, request.GetArguments()), nil
			},
		})
	}
	s.AddTools(tools...)
}

func (r *Registry) callMCP(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	result, err := r.Dispatch(ctx, name, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(raw))
}
