package metadata

import "fmt"

type Entity struct {
	Name       string     `json:"name" yaml:"name"`
	Table      string     `json:"table" yaml:"table"`
	PrimaryKey PrimaryKey `json:"primary_key" yaml:"primary_key"`
	Fields     []Field    `json:"fields" yaml:"fields"`
}

type PrimaryKey struct {
	Field     string `json:"field" yaml:"field"`
	Type      string `json:"type" yaml:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated" yaml:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// KeyField returns the primary key field definition.
func (e *Entity) KeyField() *Field {
	return e.GetField(e.PrimaryKey.Field)
}

// WritableFields returns fields that can be set by an upsert.
// Excludes generated PKs.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on UPDATE. Excludes the PK.
func (e *Entity) UpdatableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// Validate checks that the entity is internally consistent.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity has no name")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table is required", e.Name)
	}
	if e.PrimaryKey.Field == "" {
		return fmt.Errorf("entity %s: primary key field is required", e.Name)
	}
	if e.KeyField() == nil {
		return fmt.Errorf("entity %s: primary key %s is not a field", e.Name, e.PrimaryKey.Field)
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
