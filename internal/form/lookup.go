package form

import (
	"context"
	"fmt"
	"slices"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// LookupHandler resolves a lookup selection. The default handler jumps to
// the first record whose attribute equals the selected value.
type LookupHandler func(ctx context.Context, c *Controller, value any) error

// LookupAdapter shows an attribute and lets the user jump to another
// record by picking one of its values. It never writes to the record and
// is never dirty.
type LookupAdapter struct {
	def    FieldDef
	kind   LookupField
	field  *metadata.Field
	entity *metadata.Entity
	store  Store
	cache  *ChoiceCache

	value      any
	candidates []Choice

	changeFns []func(Change)
	selectFns []func(ctx context.Context, value any) error
}

func newLookupAdapter(def FieldDef, entity *metadata.Entity, s Store, cache *ChoiceCache) *LookupAdapter {
	return &LookupAdapter{
		def:    def,
		kind:   def.Kind.(LookupField),
		field:  entity.GetField(def.Attribute()),
		entity: entity,
		store:  s,
		cache:  cache,
		value:  Unset,
	}
}

func (l *LookupAdapter) Name() string  { return l.def.Name }
func (l *LookupAdapter) Def() FieldDef { return l.def }
func (l *LookupAdapter) Value() any    { return l.value }

func (l *LookupAdapter) IsDirty() bool             { return false }
func (l *LookupAdapter) SetDirty(bool, bool)       {}
func (l *LookupAdapter) OnDirtyChanged(func(bool)) {}
func (l *LookupAdapter) OnChange(fn func(Change))  { l.changeFns = append(l.changeFns, fn) }

// OnSelect registers a selection handler. Handlers run in registration
// order; the first error stops the chain.
func (l *LookupAdapter) OnSelect(fn func(ctx context.Context, value any) error) {
	l.selectFns = append(l.selectFns, fn)
}

func (l *LookupAdapter) LoadFromRecord(_ context.Context, rec *store.Record) error {
	l.value = Unset
	if rec == nil {
		return nil
	}
	if v, ok := rec.Get(l.def.Attribute()); ok && v != nil {
		c, err := l.field.Coerce(v)
		if err != nil {
			return fmt.Errorf("load %s: %w", l.def.Name, err)
		}
		l.value = c
	}
	return nil
}

func (l *LookupAdapter) SaveToRecord(context.Context, *store.Record) error { return nil }

func (l *LookupAdapter) SetValue(v any) error {
	c, err := l.resolve(v)
	if err != nil {
		return err
	}
	l.value = c
	return nil
}

// Input satisfies Adapter. It selects under context.Background, so it
// cannot be cancelled; callers holding a context use Select.
func (l *LookupAdapter) Input(v any) error {
	return l.Select(context.Background(), v)
}

// Select records the chosen value and fires the selection handlers, which
// receive ctx. Choosing nothing fires nothing, and neither does a done ctx.
func (l *LookupAdapter) Select(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := l.resolve(v)
	if err != nil {
		return err
	}
	if IsUnset(c) {
		return nil
	}
	l.value = c
	for _, fn := range l.changeFns {
		fn(Change{Field: l.def.Name, Value: c})
	}
	for _, fn := range l.selectFns {
		if err := fn(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (l *LookupAdapter) Display() string {
	if IsUnset(l.value) {
		return ""
	}
	for _, ch := range l.candidates {
		if sameValue(ch.Value, l.value) {
			return ch.Label
		}
	}
	return labelText(l.field.Encode(l.value))
}

// Candidates returns the values offered for selection.
func (l *LookupAdapter) Candidates() []Choice {
	return slices.Clone(l.candidates)
}

// RefreshChoices re-reads the candidate list: the named choice list when
// one is configured, otherwise the distinct stored values of the attribute.
func (l *LookupAdapter) RefreshChoices(ctx context.Context) error {
	if l.kind.ChoiceList != "" {
		l.candidates = l.cache.Get(l.kind.ChoiceList)
		return nil
	}
	values, err := l.store.Distinct(ctx, l.entity, l.def.Attribute())
	if err != nil {
		return err
	}
	out := make([]Choice, 0, len(values))
	for _, v := range values {
		out = append(out, Choice{Value: v, Label: labelText(l.field.Encode(v))})
	}
	l.candidates = out
	return nil
}

// resolve maps a typed value or a candidate label onto the attribute type.
func (l *LookupAdapter) resolve(v any) (any, error) {
	if v == nil || IsUnset(v) {
		return Unset, nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return Unset, nil
		}
		for _, ch := range l.candidates {
			if ch.Label == s && ch.Value != nil {
				v = ch.Value
				break
			}
		}
	}
	c, err := l.field.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid value %v: %w", l.def.Name, v, err)
	}
	return c, nil
}
