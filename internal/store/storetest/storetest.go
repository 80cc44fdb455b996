// Package storetest holds a conformance suite shared by the entity store
// implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// Backend is the full entity store surface under test.
type Backend interface {
	Get(ctx context.Context, entity *metadata.Entity, key any) (*store.Record, error)
	First(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (*store.Record, error)
	All(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) ([]*store.Record, error)
	MinKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error)
	MaxKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error)
	Distinct(ctx context.Context, entity *metadata.Entity, field string) ([]any, error)
	Upsert(ctx context.Context, rec *store.Record) (*store.Record, error)
	Delete(ctx context.Context, entity *metadata.Entity, key any) error
	Clone(ctx context.Context, entity *metadata.Entity, key any, overrides map[string]any) (*store.Record, error)
	InTx(ctx context.Context, fn func(store.Tx) error) error
}

// Factory returns an empty backend whose schema matches reg.
type Factory func(t *testing.T, reg *metadata.Registry) Backend

// Registry returns the two-entity schema the suite runs against:
// Part (unique GPN, defaults, date and decimal fields) and its Box
// dependents, deleted with their part.
func Registry(t *testing.T) *metadata.Registry {
	t.Helper()
	part := &metadata.Entity{
		Name:       "Part",
		Table:      "parts",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "GPN", Type: "string", Unique: true},
			{Name: "Description", Type: "string"},
			{Name: "active", Type: "boolean", Default: true},
			{Name: "received", Type: "date"},
			{Name: "weight", Type: "decimal", Precision: 2},
		},
	}
	box := &metadata.Entity{
		Name:       "Box",
		Table:      "boxes",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "Part_id", Type: "int"},
			{Name: "boxqty", Type: "int", Default: 1},
		},
	}
	rel := &metadata.Relation{
		Name: "boxes", Type: "one_to_many",
		Source: "Part", Target: "Box",
		SourceKey: "id", TargetKey: "Part_id",
	}
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Load([]*metadata.Entity{part, box}, []*metadata.Relation{rel}))
	return reg
}

// Run exercises every store operation against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("InsertAssignsKeyAndDefaults", func(t *testing.T) { testInsert(t, newBackend) })
	t.Run("UpdateKeepsUntouchedFields", func(t *testing.T) { testUpdate(t, newBackend) })
	t.Run("UniqueViolation", func(t *testing.T) { testUnique(t, newBackend) })
	t.Run("KeyNavigation", func(t *testing.T) { testKeyNavigation(t, newBackend) })
	t.Run("FiltersAndOrder", func(t *testing.T) { testFilters(t, newBackend) })
	t.Run("Distinct", func(t *testing.T) { testDistinct(t, newBackend) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newBackend) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascade(t, newBackend) })
	t.Run("DanglingReference", func(t *testing.T) { testDanglingReference(t, newBackend) })
	t.Run("Clone", func(t *testing.T) { testClone(t, newBackend) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newBackend) })
}

func insertPart(t *testing.T, b Backend, reg *metadata.Registry, values map[string]any) *store.Record {
	t.Helper()
	rec := store.NewRecord(reg.GetEntity("Part"))
	for k, v := range values {
		rec.Set(k, v)
	}
	out, err := b.Upsert(context.Background(), rec)
	require.NoError(t, err)
	return out
}

func testInsert(t *testing.T, newBackend Factory) {
	reg := Registry(t)
	b := newBackend(t, reg)
	received := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	rec := insertPart(t, b, reg, map[string]any{
		"GPN": "100-200", "received": received, "weight": 2.5,
	})
	require.True(t, rec.HasKey())
	assert.Equal(t, "100-200", rec.Values["GPN"])
	assert.Equal(t, true, rec.Values["active"])
	assert.Equal(t, received, rec.Values["received"])
	assert.Equal(t, 2.5, rec.Values["weight"])
	assert.Nil(t, rec.Values["Description"])

	got, err := b.Get(context.Background(), reg.GetEntity("Part"), rec.Key())
	require.NoError(t, err)
	assert.Equal(t, rec.Values, got.Values)
}

func testUpdate(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	b := newBackend(t, reg)
	rec := insertPart(t, b, reg, map[string]any{"GPN": "A", "Description": "bolt"})

	patch := store.NewRecord(rec.Entity)
	patch.Set("id", rec.Key())
	patch.Set("Description", "nut")
	out, err := b.Upsert(ctx, patch)
	require.NoError(t, err)
	assert.Equal(t, rec.Key(), out.Key())
	assert.Equal(t, "nut", out.Values["Description"])
	assert.Equal(t, "A", out.Values["GPN"])

	// An explicit key that does not exist yet is inserted.
	fresh := store.NewRecord(rec.Entity)
	fresh.Set("id", 50)
	fresh.Set("GPN", "B")
	out, err = b.Upsert(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(50), out.Key())
}

func testUnique(t *testing.T, newBackend Factory) {
	reg := Registry(t)
	b := newBackend(t, reg)
	insertPart(t, b, reg, map[string]any{"GPN": "DUP"})

	rec := store.NewRecord(reg.GetEntity("Part"))
	rec.Set("GPN", "DUP")
	_, err := b.Upsert(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUniqueViolation), "got %v", err)
}

func testKeyNavigation(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	part := reg.GetEntity("Part")
	b := newBackend(t, reg)

	_, ok, err := b.MinKey(ctx, part)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, k := range []int{3, 1, 7} {
		insertPart(t, b, reg, map[string]any{"id": k})
	}

	min, ok, err := b.MinKey(ctx, part)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), min)

	max, ok, err := b.MaxKey(ctx, part)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), max)

	next, ok, err := b.MinKey(ctx, part, store.Gt("id", 3))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), next)

	prev, ok, err := b.MaxKey(ctx, part, store.Lt("id", 3))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), prev)

	_, ok, err = b.MinKey(ctx, part, store.Gt("id", 7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testFilters(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	part := reg.GetEntity("Part")
	b := newBackend(t, reg)
	insertPart(t, b, reg, map[string]any{"id": 2, "GPN": "B", "weight": 1.0})
	insertPart(t, b, reg, map[string]any{"id": 1, "GPN": "A", "weight": 3.0})
	insertPart(t, b, reg, map[string]any{"id": 3, "GPN": "C"})

	all, err := b.All(ctx, part)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, []any{all[0].Key(), all[1].Key(), all[2].Key()})

	heavy, err := b.All(ctx, part, store.Gte("weight", 2))
	require.NoError(t, err)
	require.Len(t, heavy, 1)
	assert.Equal(t, "A", heavy[0].Values["GPN"])

	unweighed, err := b.All(ctx, part, store.Eq("weight", nil))
	require.NoError(t, err)
	require.Len(t, unweighed, 1)
	assert.Equal(t, "C", unweighed[0].Values["GPN"])

	first, err := b.First(ctx, part, store.Neq("GPN", "A"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Key())

	_, err = b.First(ctx, part, store.Eq("GPN", "Z"))
	assert.True(t, store.IsNotFound(err))

	_, err = b.All(ctx, part, store.Eq("nope", 1))
	assert.Error(t, err)
}

func testDistinct(t *testing.T, newBackend Factory) {
	reg := Registry(t)
	b := newBackend(t, reg)
	for i, d := range []any{"washer", "bolt", nil, "bolt"} {
		insertPart(t, b, reg, map[string]any{"id": i + 1, "Description": d})
	}
	vals, err := b.Distinct(context.Background(), reg.GetEntity("Part"), "Description")
	require.NoError(t, err)
	assert.Equal(t, []any{"bolt", "washer"}, vals)
}

func testTxRollback(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	part := reg.GetEntity("Part")
	b := newBackend(t, reg)
	insertPart(t, b, reg, map[string]any{"GPN": "KEEP"})

	boom := errors.New("boom")
	err := b.InTx(ctx, func(tx store.Tx) error {
		rec := store.NewRecord(part)
		rec.Set("GPN", "GONE")
		if _, err := tx.Upsert(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := b.All(ctx, part)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "KEEP", all[0].Values["GPN"])
}

func testDeleteCascade(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	boxEntity := reg.GetEntity("Box")
	b := newBackend(t, reg)
	p1 := insertPart(t, b, reg, map[string]any{"GPN": "P1"})
	p2 := insertPart(t, b, reg, map[string]any{"GPN": "P2"})

	for _, parent := range []*store.Record{p1, p1, p2} {
		box := store.NewRecord(boxEntity)
		box.Set("Part_id", parent.Key())
		out, err := b.Upsert(ctx, box)
		require.NoError(t, err)
		assert.Equal(t, int64(1), out.Values["boxqty"])
	}

	require.NoError(t, b.Delete(ctx, p1.Entity, p1.Key()))

	boxes, err := b.All(ctx, boxEntity)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, p2.Key(), boxes[0].Values["Part_id"])
}

func testDanglingReference(t *testing.T, newBackend Factory) {
	reg := Registry(t)
	b := newBackend(t, reg)
	box := store.NewRecord(reg.GetEntity("Box"))
	box.Set("Part_id", 999)
	_, err := b.Upsert(context.Background(), box)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrForeignKeyViolation), "got %v", err)
}

func testClone(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	b := newBackend(t, reg)
	src := insertPart(t, b, reg, map[string]any{"GPN": "ORIG", "Description": "bracket", "weight": 4.25})

	clone, err := b.Clone(ctx, src.Entity, src.Key(), map[string]any{"GPN": "COPY"})
	require.NoError(t, err)
	assert.NotEqual(t, src.Key(), clone.Key())
	assert.Equal(t, "COPY", clone.Values["GPN"])
	assert.Equal(t, "bracket", clone.Values["Description"])
	assert.Equal(t, 4.25, clone.Values["weight"])

	_, err = b.Clone(ctx, src.Entity, src.Key(), nil)
	assert.True(t, errors.Is(err, store.ErrUniqueViolation), "got %v", err)
}

func testNotFound(t *testing.T, newBackend Factory) {
	ctx := context.Background()
	reg := Registry(t)
	part := reg.GetEntity("Part")
	b := newBackend(t, reg)

	_, err := b.Get(ctx, part, 42)
	assert.True(t, store.IsNotFound(err))

	err = b.Delete(ctx, part, 42)
	assert.True(t, store.IsNotFound(err))
}
