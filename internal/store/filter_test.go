package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickdesk/internal/metadata"
)

func TestCompare(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), 1.5, 1},
		{"b", "a", 1},
		{false, true, -1},
		{day, day, 0},
		{nil, int64(0), -1},
		{int64(0), nil, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compare(tt.a, tt.b), "Compare(%v, %v)", tt.a, tt.b)
	}
}

func TestResolveFiltersCoercesValues(t *testing.T) {
	e := &metadata.Entity{
		Name: "WorkOrders", Table: "workorders",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "int", Generated: true},
		Fields:     []metadata.Field{{Name: "id", Type: "int"}, {Name: "CIMSNum", Type: "string"}},
	}
	got, err := ResolveFilters(e, []Filter{{Field: "id", Value: "7"}, Gt("CIMSNum", 12)})
	require.NoError(t, err)
	assert.Equal(t, []Filter{{Field: "id", Op: OpEq, Value: int64(7)}, {Field: "CIMSNum", Op: OpGt, Value: "12"}}, got)

	_, err = ResolveFilters(e, []Filter{{Field: "id", Op: "like", Value: 1}})
	assert.Error(t, err)
	_, err = ResolveFilters(e, []Filter{Lt("id", nil)})
	assert.Error(t, err)
}

func TestMatchNulls(t *testing.T) {
	row := map[string]any{"a": nil, "b": int64(3)}
	assert.True(t, Match(row, []Filter{Eq("a", nil)}))
	assert.False(t, Match(row, []Filter{Neq("a", nil)}))
	assert.False(t, Match(row, []Filter{Gt("a", int64(0))}))
	assert.True(t, Match(row, []Filter{Neq("b", nil), Lte("b", int64(3))}))
	assert.True(t, Match(row, []Filter{Eq("missing", nil)}))
}

func TestBuildWhereClause(t *testing.T) {
	pb := (&SQLiteDialect{}).NewParamBuilder()
	assert.Equal(t, "id > ?1", buildWhereClause(Gt("id", int64(3)), int64(3), pb))
	assert.Equal(t, "Project_id IS NULL", buildWhereClause(Eq("Project_id", nil), nil, pb))
	assert.Equal(t, "Project_id IS NOT NULL", buildWhereClause(Neq("Project_id", nil), nil, pb))
	assert.Equal(t, []any{int64(3)}, pb.Params())

	pg := (&PostgresDialect{}).NewParamBuilder()
	assert.Equal(t, "GPN = $1", buildWhereClause(Eq("GPN", "x"), "x", pg))
}
