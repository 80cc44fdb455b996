package form

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

func testEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "WorkOrder",
		Table:      "work_orders",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "int"},
			{Name: "CIMSNum", Type: "string"},
			{Name: "Project_id", Type: "int"},
			{Name: "rush", Type: "boolean"},
			{Name: "due", Type: "date"},
			{Name: "qty", Type: "int"},
		},
	}
}

func adapterFor(t *testing.T, def FieldDef) *FieldAdapter {
	t.Helper()
	e := testEntity()
	f := e.GetField(def.Attribute())
	require.NotNil(t, f)
	return newFieldAdapter(def, f, nil)
}

func TestInputMarksDirtyAndEmits(t *testing.T) {
	a := adapterFor(t, FieldDef{Name: "CIMSNum", Kind: TextField{}})
	rec := store.NewRecord(testEntity())
	rec.Set("CIMSNum", "WO-1")
	require.NoError(t, a.LoadFromRecord(context.Background(), rec))

	var changes []Change
	var dirtyEvents []bool
	a.OnChange(func(c Change) { changes = append(changes, c) })
	a.OnDirtyChanged(func(d bool) { dirtyEvents = append(dirtyEvents, d) })

	require.NoError(t, a.Input("WO-2"))
	require.NoError(t, a.Input("WO-3"))
	require.NoError(t, a.Input("WO-1"))

	require.Len(t, changes, 3)
	assert.Equal(t, Change{Field: "CIMSNum", Value: "WO-2", Dirty: true}, changes[0])
	assert.Equal(t, []bool{true, false}, dirtyEvents)
	assert.False(t, a.IsDirty())
}

func TestSetValueIsNotAnEdit(t *testing.T) {
	a := adapterFor(t, FieldDef{Name: "qty", Kind: TextField{}})
	require.NoError(t, a.LoadFromRecord(context.Background(), nil))
	fired := false
	a.OnChange(func(Change) { fired = true })
	a.OnDirtyChanged(func(bool) { fired = true })

	require.NoError(t, a.SetValue("12"))
	assert.Equal(t, int64(12), a.Value())
	assert.False(t, a.IsDirty())
	assert.False(t, fired)

	assert.Error(t, a.SetValue("twelve"))
}

func TestSaveToRecordWritesOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	a := adapterFor(t, FieldDef{Name: "qty", Kind: TextField{}})
	rec := store.NewRecord(testEntity())
	rec.Set("qty", int64(4))
	require.NoError(t, a.LoadFromRecord(ctx, rec))

	require.NoError(t, a.SetValue(5))
	require.NoError(t, a.SaveToRecord(ctx, rec))
	assert.Equal(t, int64(4), rec.Values["qty"], "clean adapters do not write")

	require.NoError(t, a.Input("0"))
	require.True(t, a.IsDirty())
	require.NoError(t, a.SaveToRecord(ctx, rec))
	assert.Equal(t, int64(0), rec.Values["qty"])
	assert.False(t, a.IsDirty())

	require.NoError(t, a.Input(""))
	assert.True(t, IsUnset(a.Value()))
	require.NoError(t, a.SaveToRecord(ctx, rec))
	v, present := rec.Get("qty")
	assert.True(t, present)
	assert.Nil(t, v, "a cleared field is stored as NULL")
}

func TestEmptyStringIsPresentForTextFields(t *testing.T) {
	a := adapterFor(t, FieldDef{Name: "CIMSNum", Kind: TextField{}})
	require.NoError(t, a.LoadFromRecord(context.Background(), nil))
	assert.True(t, IsUnset(a.Value()))

	require.NoError(t, a.Input(""))
	assert.Equal(t, "", a.Value())
	assert.True(t, a.IsDirty())
}

func TestReadOnlyIgnoresInput(t *testing.T) {
	a := adapterFor(t, FieldDef{Name: "id", Kind: TextField{}, ReadOnly: true})
	rec := store.NewRecord(testEntity())
	rec.Set("id", int64(9))
	require.NoError(t, a.LoadFromRecord(context.Background(), rec))

	require.NoError(t, a.Input("10"))
	assert.Equal(t, int64(9), a.Value())
	assert.False(t, a.IsDirty())
}

func TestTransformRunsBeforeCompare(t *testing.T) {
	tr, err := ExprTransform(`upper(trim(value))`)
	require.NoError(t, err)
	a := adapterFor(t, FieldDef{Name: "CIMSNum", Kind: TextField{}, Transform: tr})
	rec := store.NewRecord(testEntity())
	rec.Set("CIMSNum", "WO-7")
	require.NoError(t, a.LoadFromRecord(context.Background(), rec))

	require.NoError(t, a.Input("  wo-7 "))
	assert.Equal(t, "WO-7", a.Value())
	assert.False(t, a.IsDirty())
}

func TestCheckbox(t *testing.T) {
	ctx := context.Background()
	a := adapterFor(t, FieldDef{Name: "rush", Kind: CheckboxField{YesNo: &YesNo{Yes: "Rush", No: "Normal"}}})
	rec := store.NewRecord(testEntity())
	rec.Set("rush", false)
	require.NoError(t, a.LoadFromRecord(ctx, rec))
	assert.Equal(t, false, a.Value())
	assert.Equal(t, "Normal", a.Display())

	require.NoError(t, a.Toggle())
	assert.Equal(t, true, a.Value())
	assert.Equal(t, "Rush", a.Display())
	assert.True(t, a.IsDirty())

	require.NoError(t, a.Input("false"))
	assert.False(t, a.IsDirty())

	plain := adapterFor(t, FieldDef{Name: "rush", Kind: CheckboxField{}})
	require.NoError(t, plain.LoadFromRecord(ctx, nil))
	assert.Equal(t, "", plain.Display())
	require.NoError(t, plain.Toggle())
	assert.Equal(t, "[x]", plain.Display())
}

func TestDateField(t *testing.T) {
	a := adapterFor(t, FieldDef{Name: "due", Kind: DateField{}})
	require.NoError(t, a.LoadFromRecord(context.Background(), nil))

	require.NoError(t, a.Input("2024-12-31"))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), a.Value())
	assert.Equal(t, "2024-12-31", a.Display())

	require.NoError(t, a.Input(time.Date(2024, 12, 31, 15, 4, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), a.Value(), "time of day is dropped")

	assert.Error(t, a.Input("someday"))
}

func TestChoiceFieldMatchesValueThenLabel(t *testing.T) {
	choices := []Choice{
		{Value: nil, Label: "---"},
		{Value: 1, Label: "Alpha"},
		{Value: 2, Label: "Beta"},
	}
	a := adapterFor(t, FieldDef{Name: "Project_id", Kind: ChoiceField{Choices: choices}})
	require.NoError(t, a.LoadFromRecord(context.Background(), nil))

	require.NoError(t, a.Input("Beta"))
	assert.Equal(t, int64(2), a.Value())
	assert.Equal(t, "Beta", a.Display())

	require.NoError(t, a.Input(1))
	assert.Equal(t, int64(1), a.Value())
	assert.Equal(t, "Alpha", a.Display())

	require.NoError(t, a.Input("---"))
	assert.True(t, IsUnset(a.Value()))
	assert.False(t, a.IsDirty())

	require.NoError(t, a.Input(5))
	assert.Equal(t, int64(5), a.Value(), "values outside the list are kept")
	assert.Equal(t, "5", a.Display())
}

func TestChoiceFieldReadsCacheList(t *testing.T) {
	ctx := context.Background()
	e := testEntity()
	cache := NewChoiceCache(nil)
	cache.Register("Project", func(context.Context, Store) ([]Choice, error) {
		return []Choice{{Value: int64(4), Label: "Dock"}}, nil
	})
	a := newFieldAdapter(FieldDef{Name: "Project_id", Kind: ChoiceField{ChoiceList: "Project"}}, e.GetField("Project_id"), cache)
	assert.Empty(t, a.Choices())

	require.NoError(t, cache.Refresh(ctx, "Project"))
	require.NoError(t, a.Input("Dock"))
	assert.Equal(t, int64(4), a.Value())
}
