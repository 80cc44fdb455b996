package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pickdesk/internal/metadata"
)

// Tx is the write surface available inside InTx.
type Tx interface {
	Get(ctx context.Context, entity *metadata.Entity, key any) (*Record, error)
	Upsert(ctx context.Context, rec *Record) (*Record, error)
	Delete(ctx context.Context, entity *metadata.Entity, key any) error
}

// sqlOps runs record operations against either the pool or a transaction.
type sqlOps struct {
	q Querier
	d Dialect
}

func (s *Store) ops() sqlOps { return sqlOps{q: s.DB, d: s.Dialect} }

func (s *Store) Get(ctx context.Context, entity *metadata.Entity, key any) (*Record, error) {
	return s.ops().Get(ctx, entity, key)
}

// First returns the lowest-keyed record matching filters.
func (s *Store) First(ctx context.Context, entity *metadata.Entity, filters ...Filter) (*Record, error) {
	recs, err := s.ops().selectRecords(ctx, entity, filters, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// All returns every record matching filters in key order.
func (s *Store) All(ctx context.Context, entity *metadata.Entity, filters ...Filter) ([]*Record, error) {
	return s.ops().selectRecords(ctx, entity, filters, 0)
}

func (s *Store) MinKey(ctx context.Context, entity *metadata.Entity, filters ...Filter) (any, bool, error) {
	return s.ops().aggregateKey(ctx, entity, "MIN", filters)
}

func (s *Store) MaxKey(ctx context.Context, entity *metadata.Entity, filters ...Filter) (any, bool, error) {
	return s.ops().aggregateKey(ctx, entity, "MAX", filters)
}

// Distinct returns the distinct non-NULL values of field in ascending order.
func (s *Store) Distinct(ctx context.Context, entity *metadata.Entity, field string) ([]any, error) {
	f := entity.GetField(field)
	if f == nil {
		return nil, fmt.Errorf("%s has no field %s", entity.Name, field)
	}
	sqlStr := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		f.Name, entity.Table, f.Name, f.Name)
	rows, err := QueryRows(ctx, s.DB, sqlStr)
	if err != nil {
		return nil, s.Dialect.MapError(err)
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := f.Coerce(row[f.Name])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", entity.Name, f.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	return s.ops().Upsert(ctx, rec)
}

func (s *Store) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	return s.ops().Delete(ctx, entity, key)
}

// Clone copies the record at key into a new record. Generated keys are
// reassigned; overrides replace copied values and must supply the key for
// entities whose key is not generated.
func (s *Store) Clone(ctx context.Context, entity *metadata.Entity, key any, overrides map[string]any) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = CloneRecord(ctx, tx, entity, key, overrides)
		return err
	})
	return out, err
}

// InTx runs fn inside a database transaction. The transaction commits
// only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(sqlOps{q: tx, d: s.Dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CloneRecord implements clone-with-new-key on top of any Tx.
func CloneRecord(ctx context.Context, tx Tx, entity *metadata.Entity, key any, overrides map[string]any) (*Record, error) {
	src, err := tx.Get(ctx, entity, key)
	if err != nil {
		return nil, err
	}
	clone := src.Copy()
	clone.Unset(entity.PrimaryKey.Field)
	for k, v := range overrides {
		clone.Set(k, v)
	}
	if !clone.HasKey() && !entity.PrimaryKey.Generated {
		return nil, fmt.Errorf("clone %s: a new %s is required", entity.Name, entity.PrimaryKey.Field)
	}
	return tx.Upsert(ctx, clone)
}

func (o sqlOps) Get(ctx context.Context, entity *metadata.Entity, key any) (*Record, error) {
	k, err := CoerceKey(entity, key)
	if err != nil {
		return nil, err
	}
	recs, err := o.selectRecords(ctx, entity, []Filter{Eq(entity.PrimaryKey.Field, k)}, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %v: %w", entity.Name, k, ErrNotFound)
	}
	return recs[0], nil
}

func (o sqlOps) selectRecords(ctx context.Context, entity *metadata.Entity, filters []Filter, limit int) ([]*Record, error) {
	resolved, err := ResolveFilters(entity, filters)
	if err != nil {
		return nil, err
	}
	pb := o.d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s", strings.Join(entity.FieldNames(), ", "), entity.Table)
	sqlStr += o.whereSQL(entity, resolved, pb)
	sqlStr += " ORDER BY " + entity.PrimaryKey.Field
	if limit > 0 {
		sqlStr += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := QueryRows(ctx, o.q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, o.d.MapError(err)
	}
	recs := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRow(entity, row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (o sqlOps) aggregateKey(ctx context.Context, entity *metadata.Entity, fn string, filters []Filter) (any, bool, error) {
	resolved, err := ResolveFilters(entity, filters)
	if err != nil {
		return nil, false, err
	}
	pb := o.d.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s(%s) AS k FROM %s", fn, entity.PrimaryKey.Field, entity.Table)
	sqlStr += o.whereSQL(entity, resolved, pb)

	row, err := QueryRow(ctx, o.q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, false, o.d.MapError(err)
	}
	if row["k"] == nil {
		return nil, false, nil
	}
	k, err := CoerceKey(entity, row["k"])
	if err != nil {
		return nil, false, err
	}
	return k, true, nil
}

func (o sqlOps) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	entity := rec.Entity
	values, err := CoerceValues(entity, rec.Values)
	if err != nil {
		return nil, err
	}
	pkField := entity.PrimaryKey.Field
	key := values[pkField]
	if key == nil {
		delete(values, pkField)
		switch {
		case entity.PrimaryKey.Generated && entity.PrimaryKey.Type == "uuid":
			key = uuid.NewString()
			values[pkField] = key
		case entity.PrimaryKey.Generated:
			// assigned by the database
		default:
			return nil, fmt.Errorf("upsert %s: %s is required", entity.Name, pkField)
		}
	}

	pb := o.d.NewParamBuilder()
	var cols, phs, sets []string
	for i := range entity.Fields {
		f := &entity.Fields[i]
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		cols = append(cols, f.Name)
		phs = append(phs, pb.Add(o.d.Param(f, v)))
		if f.Name != pkField {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", f.Name, f.Name))
		}
	}

	var sqlStr string
	switch {
	case len(cols) == 0:
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", entity.Table, pkField)
	case key == nil:
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			entity.Table, strings.Join(cols, ", "), strings.Join(phs, ", "), pkField)
	default:
		if len(sets) == 0 {
			sets = []string{fmt.Sprintf("%s = excluded.%s", pkField, pkField)}
		}
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
			entity.Table, strings.Join(cols, ", "), strings.Join(phs, ", "),
			pkField, strings.Join(sets, ", "), pkField)
	}

	row, err := QueryRow(ctx, o.q, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", entity.Name, o.d.MapError(err))
	}
	return o.Get(ctx, entity, row[pkField])
}

func (o sqlOps) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	k, err := CoerceKey(entity, key)
	if err != nil {
		return err
	}
	pb := o.d.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", entity.Table, entity.PrimaryKey.Field,
		pb.Add(o.d.Param(entity.KeyField(), k)))
	n, err := Exec(ctx, o.q, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s %v: %w", entity.Name, k, o.d.MapError(err))
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", entity.Name, k, ErrNotFound)
	}
	return nil
}

func (o sqlOps) whereSQL(entity *metadata.Entity, filters []Filter, pb ParamBuilder) string {
	if len(filters) == 0 {
		return ""
	}
	clauses := make([]string, len(filters))
	for i, f := range filters {
		clauses[i] = buildWhereClause(f, o.d.Param(entity.GetField(f.Field), f.Value), pb)
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func buildWhereClause(f Filter, param any, pb ParamBuilder) string {
	if f.Value == nil {
		if f.Op == OpNeq {
			return f.Field + " IS NOT NULL"
		}
		return f.Field + " IS NULL"
	}
	switch f.Op {
	case OpNeq:
		return fmt.Sprintf("%s != %s", f.Field, pb.Add(param))
	case OpGt:
		return fmt.Sprintf("%s > %s", f.Field, pb.Add(param))
	case OpGte:
		return fmt.Sprintf("%s >= %s", f.Field, pb.Add(param))
	case OpLt:
		return fmt.Sprintf("%s < %s", f.Field, pb.Add(param))
	case OpLte:
		return fmt.Sprintf("%s <= %s", f.Field, pb.Add(param))
	default:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(param))
	}
}

func decodeRow(entity *metadata.Entity, row map[string]any) (*Record, error) {
	rec := NewRecord(entity)
	for _, f := range entity.Fields {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		c, err := f.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", entity.Name, f.Name, err)
		}
		rec.Values[f.Name] = c
	}
	return rec, nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
