package store

import (
	"fmt"
	"maps"

	"pickdesk/internal/metadata"
)

// Record is one entity instance. A field absent from Values has no value;
// a present nil is NULL.
type Record struct {
	Entity *metadata.Entity
	Values map[string]any
}

func NewRecord(entity *metadata.Entity) *Record {
	return &Record{Entity: entity, Values: make(map[string]any)}
}

// Get returns the value of field and whether it is present.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.Values[field]
	return v, ok
}

func (r *Record) Set(field string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[field] = v
}

func (r *Record) Unset(field string) {
	delete(r.Values, field)
}

// Key returns the primary key value, or nil when unset.
func (r *Record) Key() any {
	return r.Values[r.Entity.PrimaryKey.Field]
}

// HasKey reports whether the primary key is present and non-NULL.
func (r *Record) HasKey() bool {
	return r.Key() != nil
}

// Copy returns a detached copy. Values are copied one level deep.
func (r *Record) Copy() *Record {
	return &Record{Entity: r.Entity, Values: maps.Clone(r.Values)}
}

func (r *Record) String() string {
	return fmt.Sprintf("%s[%v]", r.Entity.Name, r.Key())
}

// CoerceKey converts key into the canonical type of the entity's primary key.
func CoerceKey(entity *metadata.Entity, key any) (any, error) {
	f := entity.KeyField()
	if f == nil {
		return nil, fmt.Errorf("entity %s has no key field", entity.Name)
	}
	k, err := f.Coerce(key)
	if err != nil {
		return nil, fmt.Errorf("%s key %v: %w", entity.Name, key, err)
	}
	return k, nil
}

// CoerceValues converts every known field in values to its canonical type.
// Unknown fields are rejected.
func CoerceValues(entity *metadata.Entity, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		f := entity.GetField(name)
		if f == nil {
			return nil, fmt.Errorf("%s has no field %s", entity.Name, name)
		}
		c, err := f.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entity.Name, name, err)
		}
		out[name] = c
	}
	return out, nil
}

// ApplyDefaults fills absent fields that declare a default.
func ApplyDefaults(entity *metadata.Entity, values map[string]any) error {
	for _, f := range entity.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := values[f.Name]; ok {
			continue
		}
		v, err := f.Coerce(f.Default)
		if err != nil {
			return fmt.Errorf("%s.%s default: %w", entity.Name, f.Name, err)
		}
		values[f.Name] = v
	}
	return nil
}
