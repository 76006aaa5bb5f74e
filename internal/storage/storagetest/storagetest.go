// Package storagetest opens throwaway SQLite-backed job stores for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/inference-hitl/internal/storage"
	"github.com/cuongbtq/inference-hitl/shared/logger"
	"github.com/cuongbtq/inference-hitl/shared/sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewDB opens a migrated SQLite database under t.TempDir.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	client, err := sqlite.NewClient(&sqlite.Config{
		Path: filepath.Join(t.TempDir(), "jobs.db"),
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, storage.Migrate(context.Background(), client.GetDB(), sqlite.DriverName))
	return client.GetDB()
}

// New returns a Storage over a fresh database.
func New(t *testing.T, opts ...storage.Option) *storage.Storage {
	t.Helper()
	return storage.NewStorage(NewDB(t), logger.Discard(), opts...)
}
