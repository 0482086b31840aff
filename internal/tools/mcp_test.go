package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestRegisterMCP(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))
	r := New(newFakeMailbox(), &fakePage{}, Options{})
	r.RegisterMCP(s)

	assert.Len(t, s.ListTools(), len(catalogOrder))

	result := callTool(t, s, "archive_message", map[string]any{"message_id": "m1"})
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"success":true}`, resultText(t, result))

	result = callTool(t, s, "select_threads", map[string]any{"by": "nope"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "by must be one of")
}
