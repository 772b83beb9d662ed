// Package core runs the MCP server over Streamable HTTP: routing, CORS,
// health checks and graceful shutdown.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/vcto/testzeus-mcp/internal/config"
	"github.com/vcto/testzeus-mcp/internal/middleware"
)

// EndpointPath is where the MCP endpoint is mounted.
const EndpointPath = "/mcp"

const shutdownTimeout = 5 * time.Second

// NewRouter mounts mcpServer under EndpointPath next to /health.
func NewRouter(mcpServer *server.MCPServer, cfg *config.Config, logger *slog.Logger) http.Handler {
	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithStateLess(true),
		server.WithEndpointPath(EndpointPath),
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins...)))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(protocolLogger(logger))
		r.Handle(EndpointPath, streamable)
		r.Handle(EndpointPath+"/*", streamable)
	})
	return r
}

// Serve listens on cfg.Port until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, mcpServer *server.MCPServer, cfg *config.Config, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(mcpServer, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Serving MCP over Streamable HTTP", "addr", srv.Addr, "endpoint", cfg.ServerURL+EndpointPath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// protocolLogger logs how each client talks to the endpoint. Some clients
// send a charset parameter the transport rejects, so it is stripped.
func protocolLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			if strings.HasPrefix(contentType, "application/json") {
				r.Header.Set("Content-Type", "application/json")
			}

			logger.Debug("MCP request",
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"client", clientKind(r),
				"accept", r.Header.Get("Accept"),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func clientKind(r *http.Request) string {
	agent := r.UserAgent()
	switch {
	case strings.Contains(r.Header.Get("Accept"), "text/event-stream") && r.Method == http.MethodGet:
		return "sse"
	case strings.Contains(agent, "node"), strings.Contains(agent, "inspector"):
		return "inspector"
	case strings.Contains(agent, "curl"):
		return "curl"
	case r.Method == http.MethodPost:
		return "http"
	}
	return "unknown"
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("protocol") == "true" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"transport": "streamable-http",
			"endpoint":  EndpointPath,
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
