package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pickdesk/internal/config"
	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
	"pickdesk/internal/store/storetest"
)

func openSQLite(t *testing.T, reg *metadata.Registry) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, store.NewMigrator(s, reg).MigrateAll(ctx))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, reg *metadata.Registry) storetest.Backend {
		return openSQLite(t, reg)
	})
}

func TestMigrateAddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	reg := storetest.Registry(t)
	s := openSQLite(t, reg)

	part := reg.GetEntity("Part")
	part.Fields = append(part.Fields, metadata.Field{Name: "notes", Type: "text"})
	require.NoError(t, store.NewMigrator(s, reg).Migrate(ctx, part))

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "parts")
	require.NoError(t, err)
	assert.Contains(t, cols, "notes")
	assert.Equal(t, "TEXT", cols["notes"])
}

func TestSeedOnlyFillsEmptyEntity(t *testing.T) {
	ctx := context.Background()
	reg := storetest.Registry(t)
	s := openSQLite(t, reg)
	part := reg.GetEntity("Part")

	rows := []map[string]any{{"GPN": "A"}, {"GPN": "B"}}
	n, err := store.Seed(ctx, s, part, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.Seed(ctx, s, part, rows)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := s.All(ctx, part)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
