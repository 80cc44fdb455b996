package form

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldChoicesOrderedByLabel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, f.part, map[string]any{"id": 1, "GPN": "ZX-9"})
	f.put(t, f.part, map[string]any{"id": 2, "GPN": "AB-1"})

	cache := NewChoiceCache(f.store)
	cache.Register("Parts", FieldChoices(f.part, "id", "GPN"))
	cache.Register("PartsOrNone", FieldChoices(f.part, "id", "GPN", WithNone("---")))
	assert.Equal(t, []string{"Parts", "PartsOrNone"}, cache.Names())
	require.NoError(t, cache.RefreshAll(ctx))

	assert.Equal(t, []Choice{
		{Value: int64(2), Label: "AB-1"},
		{Value: int64(1), Label: "ZX-9"},
	}, cache.Get("Parts"))
	withNone := cache.Get("PartsOrNone")
	require.Len(t, withNone, 3)
	assert.Equal(t, Choice{Label: "---"}, withNone[0])

	// Lists only change on refresh.
	f.put(t, f.part, map[string]any{"id": 3, "GPN": "MM-5"})
	assert.Len(t, cache.Get("Parts"), 2)
	require.NoError(t, cache.Refresh(ctx, "Parts"))
	assert.Len(t, cache.Get("Parts"), 3)

	assert.Error(t, cache.Refresh(ctx, "Colours"))
}

func TestSaveRefreshesChoiceCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cache := NewChoiceCache(f.store)
	cache.Register("Parts", FieldChoices(f.part, "id", "GPN"))
	require.NoError(t, cache.RefreshAll(ctx))

	fields := append(partFields()[:2], FieldDef{Name: "weight", Kind: TextField{}})
	c, err := New(ctx, Options{Entity: f.part, Registry: f.reg, Fields: fields, Store: f.store, Choices: cache})
	require.NoError(t, err)
	assert.Empty(t, cache.Get("Parts"))

	require.NoError(t, c.Field("GPN").Input("q-1"))
	require.NoError(t, c.Save(ctx))
	assert.Equal(t, []Choice{{Value: int64(1), Label: "Q-1"}}, cache.Get("Parts"))
}

func TestLookupOverChoiceList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedParts(t)
	cache := NewChoiceCache(f.store)
	cache.Register("Parts", FieldChoices(f.part, "id", "GPN"))
	require.NoError(t, cache.RefreshAll(ctx))

	c, err := New(ctx, Options{
		Entity:   f.part,
		Registry: f.reg,
		Fields: []FieldDef{
			{Name: "id", Kind: TextField{}, ReadOnly: true},
			{Name: "@id", Label: "GPN", Kind: LookupField{ChoiceList: "Parts"}},
		},
		Store:   f.store,
		Choices: cache,
	})
	require.NoError(t, err)

	lookup := c.Lookup("@id")
	assert.Equal(t, "P1", lookup.Display())
	require.NoError(t, lookup.Select(ctx, "P7"))
	assert.Equal(t, int64(7), c.Key())
	require.NoError(t, lookup.Select(ctx, 3))
	assert.Equal(t, int64(3), c.Key())
}
