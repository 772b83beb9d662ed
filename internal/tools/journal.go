package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/journal"
)

// Journal resource URIs. They read local state only, so no session is needed.
const (
	journalStatsURI  = "journal://stats"
	journalRecentURI = "journal://recent"

	journalRecentLimit = 50
)

func journalResources(store journal.Storage) []resource {
	stats := mcp.NewResource(journalStatsURI, "journal stats",
		mcp.WithResourceDescription("Operation counts recorded by the debug journal for this process"),
		mcp.WithMIMEType("application/json"),
	)
	recent := mcp.NewResource(journalRecentURI, "recent operations",
		mcp.WithResourceDescription("The most recent operations recorded by the debug journal, newest first"),
		mcp.WithMIMEType("application/json"),
	)

	return []resource{
		{static: &stats, handler: readJournal(func(ctx context.Context) (any, error) {
			return store.Stats(ctx)
		})},
		{static: &recent, handler: readJournal(func(ctx context.Context) (any, error) {
			entries, err := store.Recent(ctx, journalRecentLimit)
			if entries == nil {
				entries = []journal.Entry{}
			}
			return map[string]any{"entries": entries}, err
		})},
	}
}

func readJournal(load func(ctx context.Context) (any, error)) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		v, err := load(ctx)
		if err == nil {
			var text string
			if text, err = dispatch.JSON(v); err == nil {
				return contents(uri, dispatch.Result{Kind: dispatch.OK, Text: text}), nil
			}
		}
		return contents(uri, dispatch.Result{Kind: dispatch.Operation, Text: "Error reading journal: " + err.Error()}), nil
	}
}
