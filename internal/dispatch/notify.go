package dispatch

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Notifier tells the calling client about a result. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, level mcp.LoggingLevel, message string)
}

// ClientNotifier sends notifications/message through the MCP server that
// is handling the request in ctx. Outside a request it does nothing.
type ClientNotifier struct{}

func (ClientNotifier) Notify(ctx context.Context, level mcp.LoggingLevel, message string) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	_ = srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level":  level,
		"logger": "testzeus",
		"data":   message,
	})
}
