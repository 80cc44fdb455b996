package metadata

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// DateLayout is the storage layout for "date" fields.
const DateLayout = "2006-01-02"

type Field struct {
	Name      string   `json:"name" yaml:"name"`
	Type      string   `json:"type" yaml:"type"`
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	Default   any      `json:"default,omitempty" yaml:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Precision int      `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// IsNumeric returns true for int, bigint, float and decimal fields.
func (f Field) IsNumeric() bool {
	switch f.Type {
	case "int", "bigint", "float", "decimal":
		return true
	}
	return false
}

// Coerce converts v into the canonical Go type for this field:
// int64 for int/bigint, float64 for float/decimal, bool for boolean,
// time.Time for date/timestamp and string for everything else.
// nil passes through unchanged.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case "int", "bigint":
		return cast.ToInt64E(v)
	case "float", "decimal":
		return cast.ToFloat64E(v)
	case "boolean":
		return cast.ToBoolE(v)
	case "date":
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case "timestamp":
		return toTime(v)
	default:
		return cast.ToStringE(v)
	}
}

// Encode converts a canonical value into the form written to text-typed
// storage (SQLite, bolt). Dates become YYYY-MM-DD, timestamps RFC3339.
func (f Field) Encode(v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if f.Type == "date" {
		return t.Format(DateLayout)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func toTime(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, nil
		}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a date: %v", v)
	}
	return t, nil
}
