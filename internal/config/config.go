// Package config loads startup settings from flags and the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/vcto/testzeus-mcp/internal/journal"
)

// Transports the server can run on.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds everything main needs to start the server. TestZeus
// credentials are deliberately absent: they are read only when a session is
// established.
type Config struct {
	Transport      string
	Port           string
	ServerURL      string
	AllowedOrigins []string
	LogLevel       slog.Level
	Journal        journal.Config
}

// Load parses args (without the program name) on top of environment
// defaults.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("testzeus-mcp", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	transport := fs.StringP("transport", "t", getEnvDefault("MCP_TRANSPORT", TransportStdio), "transport to serve on: stdio or http")
	port := fs.StringP("port", "p", getEnvDefault("PORT", "8080"), "listen port for the http transport")
	logLevel := fs.String("log-level", getEnvDefault("LOG_LEVEL", "info"), "log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	level, err := ParseLevel(*logLevel)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Transport:      strings.ToLower(*transport),
		Port:           *port,
		ServerURL:      getEnvDefault("SERVER_URL", "http://localhost:"+*port),
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		LogLevel:       level,
		Journal:        loadJournal(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values Load cannot express as flag types.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportStdio, TransportHTTP)
	}

	if c.Transport == TransportHTTP {
		if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid port %q", c.Port)
		}
	}

	switch c.Journal.StorageType {
	case journal.StorageDisabled, journal.StorageMemory, journal.StorageFile:
	default:
		return fmt.Errorf("unsupported MCP_DEBUG_STORAGE %q", c.Journal.StorageType)
	}
	return nil
}

// NewLogger builds the process logger. Logs go to w, never stdout, which
// the stdio transport owns.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func loadJournal() journal.Config {
	if !getEnvBool("MCP_DEBUG", false) {
		return journal.Config{Enabled: false, StorageType: journal.StorageDisabled}
	}

	return journal.Config{
		Enabled:     true,
		StorageType: getEnvDefault("MCP_DEBUG_STORAGE", journal.StorageMemory),
		StoragePath: getEnvDefault("MCP_DEBUG_PATH", "./testzeus-journal.db"),
		RetentionH:  getEnvInt("MCP_DEBUG_RETENTION_H", 24),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
