package form

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cast"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

type unsetValue struct{}

func (unsetValue) String() string { return "" }

// Unset is the value of a control that holds nothing. It is distinct from
// every present value, including 0, "" and false.
var Unset any = unsetValue{}

func IsUnset(v any) bool {
	_, ok := v.(unsetValue)
	return ok
}

// Change describes one user edit.
type Change struct {
	Field string
	Value any
	Dirty bool
}

// Element is one child of a controller: a field adapter or a subform.
type Element interface {
	Name() string
	LoadFromRecord(ctx context.Context, rec *store.Record) error
	SaveToRecord(ctx context.Context, rec *store.Record) error
	IsDirty() bool
	SetDirty(dirty, emit bool)
	OnDirtyChanged(fn func(dirty bool))
}

// Adapter binds one entity attribute to one control.
type Adapter interface {
	Element
	Def() FieldDef
	Value() any
	// SetValue replaces the control value without marking the adapter
	// dirty and without notifying change listeners.
	SetValue(v any) error
	// Input applies a user edit.
	Input(v any) error
	Display() string
	OnChange(fn func(Change))
}

// snapshotter is implemented by elements whose state Save restores when
// the store rejects a write.
type snapshotter interface {
	snapshot() any
	restore(state any)
}

// FieldAdapter backs text, choice, checkbox and date fields.
type FieldAdapter struct {
	def     FieldDef
	field   *metadata.Field
	choices func() []Choice

	value any
	last  any
	dirty bool

	changeFns []func(Change)
	dirtyFns  []func(bool)
}

type adapterState struct {
	value, last any
	dirty       bool
}

func newFieldAdapter(def FieldDef, field *metadata.Field, cache *ChoiceCache) *FieldAdapter {
	a := &FieldAdapter{def: def, field: field, value: Unset, last: Unset}
	if k, ok := def.Kind.(ChoiceField); ok {
		if k.ChoiceList != "" {
			a.choices = func() []Choice { return cache.Get(k.ChoiceList) }
		} else {
			a.choices = func() []Choice { return k.Choices }
		}
	}
	return a
}

func (a *FieldAdapter) Name() string  { return a.def.Name }
func (a *FieldAdapter) Def() FieldDef { return a.def }
func (a *FieldAdapter) Value() any    { return a.value }
func (a *FieldAdapter) IsDirty() bool { return a.dirty }

// Choices returns the current choice list of a choice field, or nil.
func (a *FieldAdapter) Choices() []Choice {
	if a.choices == nil {
		return nil
	}
	return a.choices()
}

func (a *FieldAdapter) OnChange(fn func(Change))     { a.changeFns = append(a.changeFns, fn) }
func (a *FieldAdapter) OnDirtyChanged(fn func(bool)) { a.dirtyFns = append(a.dirtyFns, fn) }

func (a *FieldAdapter) LoadFromRecord(_ context.Context, rec *store.Record) error {
	v := Unset
	if rec != nil {
		if rv, ok := rec.Get(a.def.Attribute()); ok && rv != nil {
			c, err := a.field.Coerce(rv)
			if err != nil {
				return fmt.Errorf("load %s: %w", a.def.Name, err)
			}
			v = c
		}
	}
	a.value = v
	a.last = v
	a.SetDirty(false, false)
	return nil
}

func (a *FieldAdapter) SaveToRecord(_ context.Context, rec *store.Record) error {
	if !a.dirty {
		return nil
	}
	if IsUnset(a.value) {
		rec.Set(a.def.Attribute(), nil)
	} else {
		rec.Set(a.def.Attribute(), a.value)
	}
	a.last = a.value
	a.SetDirty(false, true)
	return nil
}

func (a *FieldAdapter) SetValue(v any) error {
	c, err := a.canonical(v)
	if err != nil {
		return err
	}
	a.value = c
	return nil
}

func (a *FieldAdapter) Input(v any) error {
	if a.def.ReadOnly {
		return nil
	}
	if a.def.Transform != nil && !IsUnset(v) {
		t, err := a.def.Transform(v)
		if err != nil {
			return fmt.Errorf("%s: %w", a.def.Name, err)
		}
		v = t
	}
	c, err := a.canonical(v)
	if err != nil {
		return err
	}
	a.value = c
	a.SetDirty(!sameValue(a.value, a.last), true)
	for _, fn := range a.changeFns {
		fn(Change{Field: a.def.Name, Value: c, Dirty: a.dirty})
	}
	return nil
}

// Toggle flips a checkbox. An unset checkbox becomes checked.
func (a *FieldAdapter) Toggle() error {
	checked, _ := a.value.(bool)
	return a.Input(!checked)
}

func (a *FieldAdapter) SetDirty(dirty, emit bool) {
	changed := a.dirty != dirty
	a.dirty = dirty
	if emit && changed {
		for _, fn := range a.dirtyFns {
			fn(dirty)
		}
	}
}

func (a *FieldAdapter) Display() string {
	if IsUnset(a.value) {
		return ""
	}
	switch k := a.def.Kind.(type) {
	case CheckboxField:
		b := cast.ToBool(a.value)
		if k.YesNo != nil {
			if b {
				return k.YesNo.Yes
			}
			return k.YesNo.No
		}
		if b {
			return "[x]"
		}
		return "[ ]"
	case ChoiceField:
		for _, ch := range a.Choices() {
			if ch.Value != nil && sameValue(a.coerceQuiet(ch.Value), a.value) {
				return ch.Label
			}
		}
	case DateField:
		if t, ok := a.value.(time.Time); ok && a.field.Type == "date" {
			return t.Format(metadata.DateLayout)
		}
	}
	return cast.ToString(a.field.Encode(a.value))
}

func (a *FieldAdapter) snapshot() any {
	return adapterState{value: a.value, last: a.last, dirty: a.dirty}
}

func (a *FieldAdapter) restore(state any) {
	s := state.(adapterState)
	a.value, a.last = s.value, s.last
	a.SetDirty(s.dirty, true)
}

// canonical converts a control value to the bound field's type. Choice
// fields first resolve the value against their list, then by label.
func (a *FieldAdapter) canonical(v any) (any, error) {
	if v == nil || IsUnset(v) {
		return Unset, nil
	}
	if _, ok := a.def.Kind.(ChoiceField); ok {
		if ch, found := a.matchChoice(v); found {
			if ch.Value == nil {
				return Unset, nil
			}
			v = ch.Value
		}
	}
	if s, ok := v.(string); ok && a.field.Type != "string" && a.field.Type != "text" && strings.TrimSpace(s) == "" {
		return Unset, nil
	}
	c, err := a.field.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid value %q: %w", a.def.Name, cast.ToString(v), err)
	}
	return c, nil
}

func (a *FieldAdapter) matchChoice(v any) (Choice, bool) {
	choices := a.Choices()
	if c, err := a.field.Coerce(v); err == nil {
		for _, ch := range choices {
			if ch.Value != nil && sameValue(a.coerceQuiet(ch.Value), c) {
				return ch, true
			}
		}
	}
	if s, ok := v.(string); ok {
		for _, ch := range choices {
			if ch.Label == s {
				return ch, true
			}
		}
	}
	return Choice{}, false
}

func (a *FieldAdapter) coerceQuiet(v any) any {
	c, err := a.field.Coerce(v)
	if err != nil {
		return v
	}
	return c
}

func sameValue(a, b any) bool {
	return cmp.Equal(a, b)
}
