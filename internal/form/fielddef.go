package form

import (
	"strings"

	"pickdesk/internal/metadata"
)

// LookupMarker prefixes the name of a lookup-only field. "@GPN" jumps to
// the record whose GPN matches the selected value.
const LookupMarker = "@"

// Position places a field on the form grid. Page names the tab the field
// belongs to on multi-page forms; empty means the main page.
type Position struct {
	Row     int
	Col     int
	RowSpan int
	ColSpan int
	Page    string
}

// TransformFunc rewrites a user-entered value before it is compared and
// stored, e.g. upper-casing a part number.
type TransformFunc func(v any) (any, error)

// FieldDef describes one element of a form. Kind selects the adapter.
type FieldDef struct {
	Name      string
	Label     string
	Position  Position
	Initial   any // value placed in new records
	ReadOnly  bool
	Kind      FieldKind
	Transform TransformFunc
}

// FieldKind is one of TextField, ChoiceField, CheckboxField, DateField,
// LookupField or SubformField.
type FieldKind interface {
	kind() string
}

type TextField struct {
	Multiline bool
}

// Choice is one entry of a choice list. A nil Value is the "no choice" entry.
type Choice struct {
	Value any
	Label string
}

// ChoiceField offers either a static list or a named list from the
// ChoiceCache.
type ChoiceField struct {
	Choices    []Choice
	ChoiceList string
}

// YesNo labels the two checkbox states.
type YesNo struct {
	Yes string
	No  string
}

type CheckboxField struct {
	YesNo *YesNo
}

type DateField struct{}

// LookupField jumps to another record of the same entity. Candidates come
// from ChoiceList when set, otherwise from the distinct stored values of
// the attribute. Handler replaces the default jump (LoadByField).
type LookupField struct {
	ChoiceList string
	Handler    LookupHandler
}

// SubformField composes the dependents reached through Relation, a
// one_to_many relation sourced at the form's entity. Fields lays out one
// row.
type SubformField struct {
	Relation string
	Fields   []FieldDef
}

func (TextField) kind() string     { return "text" }
func (ChoiceField) kind() string   { return "choice" }
func (CheckboxField) kind() string { return "checkbox" }
func (DateField) kind() string     { return "date" }
func (LookupField) kind() string   { return "lookup" }
func (SubformField) kind() string  { return "subform" }

// KindName returns the short name of a field kind ("text", "lookup", ...).
func KindName(k FieldKind) string {
	if k == nil {
		return ""
	}
	return k.kind()
}

// IsLookup reports whether the definition names a lookup-only field.
func (d FieldDef) IsLookup() bool {
	return strings.HasPrefix(d.Name, LookupMarker)
}

// Attribute is the entity attribute the field is bound to.
func (d FieldDef) Attribute() string {
	return strings.TrimPrefix(d.Name, LookupMarker)
}

// DisplayLabel returns Label, falling back to the attribute name.
func (d FieldDef) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Attribute()
}

// validateDefs checks a definition table against the entity it edits.
// Subforms are only allowed at the top level (rows == false).
func validateDefs(entity *metadata.Entity, reg *metadata.Registry, defs []FieldDef, choices *ChoiceCache, rows bool) error {
	if entity == nil {
		return configError("no entity")
	}
	if len(defs) == 0 {
		return configError("%s: no fields defined", entity.Name)
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" || d.Name == LookupMarker {
			return configError("%s: field without a name", entity.Name)
		}
		if seen[d.Name] {
			return configError("%s: duplicate field %s", entity.Name, d.Name)
		}
		seen[d.Name] = true

		switch k := d.Kind.(type) {
		case nil:
			return configError("%s.%s: no adapter kind", entity.Name, d.Name)
		case SubformField:
			if rows {
				return configError("%s.%s: subforms cannot be nested in subform rows", entity.Name, d.Name)
			}
			if d.IsLookup() {
				return configError("%s.%s: a subform cannot be a lookup", entity.Name, d.Name)
			}
			if err := validateSubform(entity, reg, d, k, choices); err != nil {
				return err
			}
			continue
		case LookupField:
			if rows {
				return configError("%s.%s: lookups are not supported in subform rows", entity.Name, d.Name)
			}
			if !d.IsLookup() {
				return configError("%s.%s: lookup fields must be named %s<attribute>", entity.Name, d.Name, LookupMarker)
			}
			if k.ChoiceList != "" {
				if err := checkChoiceList(entity, d, choices, k.ChoiceList); err != nil {
					return err
				}
			}
		case ChoiceField:
			if len(k.Choices) == 0 && k.ChoiceList == "" {
				return configError("%s.%s: choice field without choices", entity.Name, d.Name)
			}
			if k.ChoiceList != "" {
				if err := checkChoiceList(entity, d, choices, k.ChoiceList); err != nil {
					return err
				}
			}
		case TextField, CheckboxField, DateField:
		default:
			return configError("%s.%s: unknown adapter kind %T", entity.Name, d.Name, d.Kind)
		}

		if d.IsLookup() {
			if _, ok := d.Kind.(LookupField); !ok {
				return configError("%s.%s: only lookup fields may use the %s marker", entity.Name, d.Name, LookupMarker)
			}
		}
		f := entity.GetField(d.Attribute())
		if f == nil {
			return configError("%s.%s: unknown attribute %s", entity.Name, d.Name, d.Attribute())
		}
		if d.Initial != nil {
			if _, err := f.Coerce(d.Initial); err != nil {
				return configError("%s.%s: initial value: %v", entity.Name, d.Name, err)
			}
		}
	}
	return nil
}

func checkChoiceList(entity *metadata.Entity, d FieldDef, choices *ChoiceCache, name string) error {
	if choices == nil || !choices.Has(name) {
		return configError("%s.%s: unknown choice list %s", entity.Name, d.Name, name)
	}
	return nil
}

func validateSubform(entity *metadata.Entity, reg *metadata.Registry, d FieldDef, k SubformField, choices *ChoiceCache) error {
	if reg == nil {
		return configError("%s.%s: subforms need a registry", entity.Name, d.Name)
	}
	rel := reg.GetRelation(k.Relation)
	if rel == nil {
		return configError("%s.%s: unknown relation %s", entity.Name, d.Name, k.Relation)
	}
	if rel.Source != entity.Name || !rel.IsOneToMany() {
		return configError("%s.%s: relation %s is not a one_to_many from %s", entity.Name, d.Name, k.Relation, entity.Name)
	}
	child := reg.GetEntity(rel.Target)
	if child == nil {
		return configError("%s.%s: unknown entity %s", entity.Name, d.Name, rel.Target)
	}
	return validateDefs(child, reg, k.Fields, choices, true)
}
