package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"kpiwarehouse/internal/config"
	"kpiwarehouse/internal/infrastructure"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts/domain"
)

// DiscardLogger returns a logger that drops everything below error and
// writes nothing.
func DiscardLogger() *slog.Logger {
	return infrastructure.NewJSONLogger(io.Discard, "error")
}

// NewTestStore opens a migrated in-memory warehouse closed at test end.
func NewTestStore(t *testing.T) *warehouse.Store {
	t.Helper()
	store, err := warehouse.Open(context.Background(), config.DatabaseConfig{
		Driver:       config.DefaultDatabaseDriver,
		DSN:          ":memory:",
		MaxOpenConns: 1,
	}, DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// StageBatch creates a batch of dataset and stages payloads into table.
func StageBatch(t *testing.T, store *warehouse.Store, dataset domain.Dataset, table string, payloads ...string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateBatch(ctx, dataset)
	require.NoError(t, err)
	if table != "" {
		require.NoError(t, store.StageRows(ctx, table, id, payloads))
	}
	return id
}
