package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(Config{Enabled: true, StorageType: StorageMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled bool
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}, enabled: false},
		{name: "explicitly disabled type", cfg: Config{Enabled: true, StorageType: StorageDisabled}, enabled: false},
		{name: "memory", cfg: Config{Enabled: true, StorageType: StorageMemory}, enabled: true},
		{name: "file", cfg: Config{Enabled: true, StorageType: StorageFile, StoragePath: filepath.Join(t.TempDir(), "j", "ops.db")}, enabled: true},
		{name: "file without path", cfg: Config{Enabled: true, StorageType: StorageFile}, wantErr: true},
		{name: "unknown", cfg: Config{Enabled: true, StorageType: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStorage(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			assert.Equal(t, tt.enabled, s.IsEnabled())
		})
	}
}

func TestSQLiteStorage_RecordAndRecent(t *testing.T) {
	s := newMemoryStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{Tool: "list_tests", Kind: "ok", Arguments: "page,per_page", DurationMS: 12}))
	require.NoError(t, s.Record(ctx, Entry{Tool: "get_test", Kind: "operation", Error: "not found", DurationMS: 3}))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "get_test", entries[0].Tool, "newest first")
	assert.Equal(t, "not found", entries[0].Error)
	assert.Equal(t, "page,per_page", entries[1].Arguments)
	assert.Equal(t, s.RunID(), entries[1].RunID)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.RunID(), stats.RunID)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, map[string]int{"list_tests": 1, "get_test": 1}, stats.ByTool)
}

func TestSQLiteStorage_CleanupOldRecords(t *testing.T) {
	s := newMemoryStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{Tool: "old", Kind: "ok", Timestamp: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, s.Record(ctx, Entry{Tool: "new", Kind: "ok"}))

	n, err := s.CleanupOldRecords(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Tool)
}

func TestStart(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := Start(ctx, Config{}, logger)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())

	s, err = Start(ctx, Config{Enabled: true, StorageType: StorageMemory, RetentionH: 1}, logger)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.True(t, s.IsEnabled())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", Redact(nil))
	assert.Equal(t, "email,password", Redact(map[string]any{"password": "hunter2", "email": "a@b.c"}))
	assert.NotContains(t, Redact(map[string]any{"password": "hunter2"}), "hunter2")
}
