package testutil

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

// NewCallToolRequest creates a CallToolRequest for testing tool handlers
func NewCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// NewReadResourceRequest creates a ReadResourceRequest for uri.
func NewReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Request: mcp.Request{
			Method: "resources/read",
		},
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// ResultText returns the text of a single-content tool result.
func ResultText(t testing.TB, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

// ResourceText returns the text of a single text resource.
func ResourceText(t testing.TB, contents []mcp.ResourceContents) (string, string) {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok, "expected text resource, got %T", contents[0])
	return text.MIMEType, text.Text
}
