package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage keeps entries in a SQLite database.
type SQLiteStorage struct {
	db          *sql.DB
	storageType string
	runID       string
}

// NewSQLiteStorage opens an in-memory or file database depending on cfg.
func NewSQLiteStorage(cfg Config) (*SQLiteStorage, error) {
	var dsn string
	switch cfg.StorageType {
	case StorageMemory:
		dsn = ":memory:"
	case StorageFile:
		dsn = cfg.StoragePath
		if dsn == "" {
			return nil, fmt.Errorf("file storage needs a path")
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{
		db:          db,
		storageType: cfg.StorageType,
		runID:       uuid.NewString(),
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		tool TEXT NOT NULL,
		kind TEXT NOT NULL,
		arguments TEXT,
		error TEXT,
		duration_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_operations_tool ON operations(tool);`)
	return err
}

// RunID identifies this process's entries.
func (s *SQLiteStorage) RunID() string {
	return s.runID
}

func (s *SQLiteStorage) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO operations (run_id, timestamp, tool, kind, arguments, error, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, e.Timestamp.UTC(), e.Tool, e.Kind, e.Arguments, e.Error, e.DurationMS)
	return err
}

func (s *SQLiteStorage) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, run_id, timestamp, tool, kind, arguments, error, duration_ms
	FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var args, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.Tool, &e.Kind, &args, &errText, &e.DurationMS); err != nil {
			return nil, err
		}
		e.Arguments = args.String
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Enabled: true, StorageType: s.storageType, RunID: s.RunID(), ByTool: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN kind != 'ok' THEN 1 ELSE 0 END), 0) FROM operations`,
	).Scan(&stats.Total, &stats.Failures)
	if err != nil {
		return stats, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tool, COUNT(*) FROM operations GROUP BY tool`)
	if err != nil {
		return stats, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var tool string
		var n int
		if err := rows.Scan(&tool, &n); err != nil {
			return stats, err
		}
		stats.ByTool[tool] = n
	}
	return stats, rows.Err()
}

func (s *SQLiteStorage) CleanupOldRecords(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	result, err := s.db.Exec("DELETE FROM operations WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) IsEnabled() bool {
	return true
}
