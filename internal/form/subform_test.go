package form

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickdesk/internal/store"
)

func boxQtys(t *testing.T, sf *Subform) []any {
	t.Helper()
	var out []any
	for _, row := range sf.Rows() {
		out = append(out, row.Field("boxqty").Value())
	}
	return out
}

func TestSubformLoadsDependentsInKeyOrder(t *testing.T) {
	f := newFixture(t)
	f.seedParts(t)
	f.put(t, f.box, map[string]any{"id": 2, "Part_id": 1, "boxqty": 6})
	f.put(t, f.box, map[string]any{"id": 1, "Part_id": 1, "boxqty": 5})
	f.put(t, f.box, map[string]any{"id": 3, "Part_id": 3, "boxqty": 7})
	c := f.open(t, nil)

	sf := c.Subform("boxes")
	require.NotNil(t, sf)
	assert.Equal(t, []any{int64(5), int64(6)}, boxQtys(t, sf))
	assert.False(t, sf.IsDirty())

	require.NoError(t, c.Next(context.Background()))
	assert.Equal(t, []any{int64(7)}, boxQtys(t, sf))
}

func TestSubformSaveOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	f.put(t, f.box, map[string]any{"id": 1, "Part_id": 1, "boxqty": 5})
	f.put(t, f.box, map[string]any{"id": 2, "Part_id": 1, "boxqty": 6})
	c := f.open(t, nil)
	sf := c.Subform("boxes")

	require.NoError(t, sf.DeleteRow(0))
	assert.True(t, c.IsDirty(), "removing a row dirties the form")
	row, err := sf.AddRow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Record().Values["Part_id"])
	require.NoError(t, row.Field("boxqty").Input("9"))

	require.NoError(t, c.Save(ctx))
	assert.Equal(t, []string{
		"upsert Part 1",
		"upsert Box 3 Part_id=1",
		"delete Box 1",
	}, f.store.ops)

	assert.False(t, c.IsDirty())
	assert.Equal(t, []any{int64(6), int64(9)}, boxQtys(t, sf))
	_, err = f.store.Get(ctx, f.box, 1)
	assert.True(t, store.IsNotFound(err))
}

func TestSubformOnNewParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	c := f.open(t, nil)
	require.NoError(t, c.Add(ctx))
	sf := c.Subform("boxes")
	assert.Zero(t, sf.Len())

	row, err := sf.AddRow(ctx)
	require.NoError(t, err)
	assert.Nil(t, row.Record().Values["Part_id"], "parent has no key yet")
	assert.Equal(t, int64(1), row.Field("boxqty").Value())
	assert.True(t, c.IsDirty(), "an added row dirties the form")

	require.NoError(t, c.Field("GPN").Input("n-1"))
	require.NoError(t, c.Save(ctx))

	assert.Equal(t, []string{"upsert Part 8", "upsert Box 1 Part_id=8"}, f.store.ops)
	assert.Equal(t, int64(8), c.Key())
	require.Equal(t, 1, sf.Len())
	assert.Equal(t, int64(8), sf.Row(0).Record().Values["Part_id"])
	assert.False(t, c.IsDirty())
}

func TestSubformRowEditDirtiesParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	f.put(t, f.box, map[string]any{"id": 1, "Part_id": 1, "boxqty": 5})
	f.put(t, f.box, map[string]any{"id": 2, "Part_id": 1, "boxqty": 6})
	c := f.open(t, nil)
	var states []State
	c.OnStateChange(func(s State) { states = append(states, s) })
	sf := c.Subform("boxes")

	qty := sf.Row(1).Field("boxqty")
	require.NoError(t, qty.Input(60))
	assert.True(t, sf.IsDirty())
	assert.True(t, c.IsDirty())
	require.NoError(t, qty.Input("6"))
	assert.False(t, c.IsDirty())
	require.Len(t, states, 2)

	require.NoError(t, qty.Input(60))
	require.NoError(t, c.Save(ctx))
	assert.Equal(t, []string{"upsert Part 1", "upsert Box 2 Part_id=1"}, f.store.ops, "unchanged rows are not written")
	assert.Equal(t, int64(60), f.get(t, f.box, 2).Values["boxqty"])
}

func TestSubformDiscardReloadsRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	f.put(t, f.box, map[string]any{"id": 1, "Part_id": 1, "boxqty": 5})
	p := &scriptedPrompter{save: []Answer{AnswerNo}}
	c := f.open(t, p)
	sf := c.Subform("boxes")

	_, err := sf.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, sf.DeleteRow(0))
	require.Equal(t, 1, sf.Len())

	require.NoError(t, c.LoadByKey(ctx, 1))
	assert.Equal(t, 1, p.asked)
	assert.False(t, c.IsDirty())
	assert.Equal(t, []any{int64(5)}, boxQtys(t, sf))
}

func TestSubformFailureRollsBackParent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	p := &scriptedPrompter{}
	c := f.open(t, p)
	require.NoError(t, c.Add(ctx))
	require.NoError(t, c.Field("GPN").Input("N1"))
	sf := c.Subform("boxes")
	row, err := sf.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, row.Field("boxqty").Input(3))

	f.store.failUpsert = "Box"
	err = c.Save(ctx)
	require.Error(t, err)
	assert.True(t, IsPersistence(err))
	assert.True(t, errors.Is(err, errInjected))
	require.Len(t, p.errs, 1)

	assert.True(t, c.IsNewRecord(), "parent insert is rolled back with its rows")
	assert.True(t, c.IsDirty())
	assert.True(t, c.Field("GPN").IsDirty())
	require.Equal(t, 1, sf.Len())
	assert.True(t, sf.Row(0).Field("boxqty").IsDirty())
	assert.Nil(t, sf.Row(0).Record().Values["Part_id"])
	_, err = f.store.First(ctx, f.part, store.Eq("GPN", "N1"))
	assert.True(t, store.IsNotFound(err))

	f.store.failUpsert = ""
	require.NoError(t, c.Save(ctx))
	assert.False(t, c.IsNewRecord())
	assert.Equal(t, []any{int64(3)}, boxQtys(t, sf))
}

func TestSubformDeleteOfUnsavedRowIsNotWritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	c := f.open(t, nil)
	sf := c.Subform("boxes")

	_, err := sf.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, sf.DeleteRow(0))
	assert.False(t, sf.IsDirty())
	assert.False(t, c.IsDirty())
	assert.Error(t, sf.DeleteRow(0))

	require.NoError(t, c.Save(ctx))
	assert.Equal(t, []string{"upsert Part 1"}, f.store.ops)
	assert.Zero(t, sf.Len())
}

func TestSubformSaveToRecordStandalone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	c := f.open(t, nil)
	sf := c.Subform("boxes")
	_, err := sf.AddRow(ctx)
	require.NoError(t, err)

	require.NoError(t, sf.SaveToRecord(ctx, c.Record()))
	assert.Equal(t, []string{"upsert Box 1 Part_id=1"}, f.store.ops)
	assert.False(t, sf.IsDirty())
	assert.Equal(t, 1, sf.Len())

	assert.Error(t, sf.SaveToRecord(ctx, store.NewRecord(f.part)))
}
