// Package journal records every dispatched TestZeus operation for later
// inspection. It is off unless MCP_DEBUG is set, in which case entries go to
// SQLite in memory or on disk. Credentials never reach the journal: argument
// values are reduced to their keys before storage.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Storage types.
const (
	StorageDisabled = "disabled"
	StorageMemory   = "memory"
	StorageFile     = "file"
)

// Config controls the journal.
type Config struct {
	Enabled     bool
	StorageType string // "disabled", "memory", "file"
	StoragePath string
	RetentionH  int
}

// Entry is one journaled operation.
type Entry struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	Kind       string    `json:"kind"`
	Arguments  string    `json:"arguments"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// Stats summarizes the journal.
type Stats struct {
	Enabled     bool           `json:"enabled"`
	StorageType string         `json:"storage_type"`
	RunID       string         `json:"run_id,omitempty"`
	Total       int64          `json:"total"`
	Failures    int64          `json:"failures"`
	ByTool      map[string]int `json:"by_tool,omitempty"`
}

// Storage is implemented by every journal backend.
type Storage interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
	CleanupOldRecords(maxAge time.Duration) (int64, error)
	Close() error
	IsEnabled() bool
}

// NoOpStorage discards everything.
type NoOpStorage struct{}

func (NoOpStorage) Record(context.Context, Entry) error { return nil }

func (NoOpStorage) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (NoOpStorage) Stats(context.Context) (Stats, error) {
	return Stats{StorageType: StorageDisabled}, nil
}

func (NoOpStorage) CleanupOldRecords(time.Duration) (int64, error) { return 0, nil }

func (NoOpStorage) Close() error { return nil }

func (NoOpStorage) IsEnabled() bool { return false }

// NewStorage creates the backend cfg asks for.
func NewStorage(cfg Config) (Storage, error) {
	if !cfg.Enabled || cfg.StorageType == StorageDisabled {
		return NoOpStorage{}, nil
	}
	return NewSQLiteStorage(cfg)
}

// Start opens the journal and, when a retention is configured, prunes old
// entries every hour until ctx is done.
func Start(ctx context.Context, cfg Config, logger *slog.Logger) (Storage, error) {
	if !cfg.Enabled {
		logger.Debug("Operation journal disabled")
		return NoOpStorage{}, nil
	}

	storage, err := NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	if cfg.RetentionH > 0 {
		maxAge := time.Duration(cfg.RetentionH) * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := storage.CleanupOldRecords(maxAge)
					if err != nil {
						logger.Warn("Journal cleanup failed", "error", err)
						continue
					}
					if n > 0 {
						logger.Debug("Journal cleanup", "removed", n)
					}
				}
			}
		}()
	}

	logger.Info("Operation journal started", "storage", cfg.StorageType, "retention_h", cfg.RetentionH)
	return storage, nil
}

// Redact reduces args to a sorted, comma separated list of its keys. Values
// are never journaled.
func Redact(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
