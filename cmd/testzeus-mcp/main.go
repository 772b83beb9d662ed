// Command testzeus-mcp exposes the TestZeus testing platform to MCP clients
// over stdio or Streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/testzeus-mcp/internal/config"
	"github.com/vcto/testzeus-mcp/internal/core"
	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/journal"
	"github.com/vcto/testzeus-mcp/internal/session"
	"github.com/vcto/testzeus-mcp/internal/tools"
)

const (
	serverName = "testzeus-mcp"
	version    = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "testzeus-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	// stdout carries the stdio transport; logs go to stderr.
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := journal.Start(ctx, cfg.Journal, logger)
	if err != nil {
		logger.Warn("Journal unavailable, continuing without it", "error", err)
		store = journal.NoOpStorage{}
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close journal", "error", err)
		}
	}()

	sessions := session.NewManager(session.WithLogger(logger))
	d := dispatch.New(sessions,
		dispatch.WithJournal(store),
		dispatch.WithLogger(logger),
	)

	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithLogging(),
	)
	tools.NewHandler(d, tools.WithJournal(store)).Register(s)

	logger.Info("Starting TestZeus MCP server", "version", version, "transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportHTTP:
		return core.Serve(ctx, s, cfg, logger)
	default:
		return serveStdio(ctx, s, logger)
	}
}

func serveStdio(ctx context.Context, s *server.MCPServer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		logger.Info("Server stopped")
		return nil
	}
	return fmt.Errorf("stdio transport: %w", err)
}
