package store

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"pickdesk/internal/metadata"
)

const (
	OpEq  = "eq"
	OpNeq = "neq"
	OpLt  = "lt"
	OpLte = "lte"
	OpGt  = "gt"
	OpGte = "gte"
)

// Filter restricts a query to records where Field Op Value holds.
// A nil Value with eq or neq tests for NULL.
type Filter struct {
	Field string
	Op    string
	Value any
}

func Eq(field string, v any) Filter  { return Filter{Field: field, Op: OpEq, Value: v} }
func Neq(field string, v any) Filter { return Filter{Field: field, Op: OpNeq, Value: v} }
func Lt(field string, v any) Filter  { return Filter{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Filter { return Filter{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v any) Filter  { return Filter{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Filter { return Filter{Field: field, Op: OpGte, Value: v} }

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// ResolveFilters checks filter fields and operators against the entity and
// coerces each value to the field's canonical type.
func ResolveFilters(entity *metadata.Entity, filters []Filter) ([]Filter, error) {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		field := entity.GetField(f.Field)
		if field == nil {
			return nil, fmt.Errorf("unknown filter field %s.%s", entity.Name, f.Field)
		}
		op := f.Op
		if op == "" {
			op = OpEq
		}
		switch op {
		case OpEq, OpNeq:
		case OpLt, OpLte, OpGt, OpGte:
			if f.Value == nil {
				return nil, fmt.Errorf("filter %s %s: nil value", f.Field, op)
			}
		default:
			return nil, fmt.Errorf("unknown filter operator %q", f.Op)
		}
		v, err := field.Coerce(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		out = append(out, Filter{Field: f.Field, Op: op, Value: v})
	}
	return out, nil
}

// Match reports whether values satisfy every (resolved) filter. NULL and
// absent values only match eq nil.
func Match(values map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v := values[f.Field]
		if f.Value == nil || v == nil {
			isNull := v == nil
			switch {
			case f.Value == nil && f.Op == OpEq && isNull:
			case f.Value == nil && f.Op == OpNeq && !isNull:
			default:
				return false
			}
			continue
		}
		c := Compare(v, f.Value)
		var ok bool
		switch f.Op {
		case OpEq:
			ok = c == 0
		case OpNeq:
			ok = c != 0
		case OpLt:
			ok = c < 0
		case OpLte:
			ok = c <= 0
		case OpGt:
			ok = c > 0
		case OpGte:
			ok = c >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// Compare orders two canonical values. nil sorts first; values of
// different kinds are ordered by their string forms.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
		if y, ok := b.(float64); ok {
			return cmp.Compare(float64(x), y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, float64(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
