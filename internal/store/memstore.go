package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pickdesk/internal/metadata"
)

// MemoryStore keeps records in maps. Used for tests and demos; it honours
// unique fields, defaults and relations the same way the SQL store does.
type MemoryStore struct {
	mu       sync.RWMutex
	registry *metadata.Registry
	tables   map[string]map[any]map[string]any // entity -> key -> values
	seq      map[string]int64
}

// NewMemoryStore creates an empty store. registry may be nil, in which
// case relations are not enforced.
func NewMemoryStore(registry *metadata.Registry) *MemoryStore {
	return &MemoryStore{
		registry: registry,
		tables:   make(map[string]map[any]map[string]any),
		seq:      make(map[string]int64),
	}
}

type memTx struct {
	s *MemoryStore
}

func (s *MemoryStore) Get(ctx context.Context, entity *metadata.Entity, key any) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s}.Get(ctx, entity, key)
}

func (s *MemoryStore) First(ctx context.Context, entity *metadata.Entity, filters ...Filter) (*Record, error) {
	recs, err := s.All(ctx, entity, filters...)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (s *MemoryStore) All(ctx context.Context, entity *metadata.Entity, filters ...Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memTx{s}.All(ctx, entity, filters...)
}

func (s *MemoryStore) MinKey(ctx context.Context, entity *metadata.Entity, filters ...Filter) (any, bool, error) {
	recs, err := s.All(ctx, entity, filters...)
	if err != nil || len(recs) == 0 {
		return nil, false, err
	}
	return recs[0].Key(), true, nil
}

func (s *MemoryStore) MaxKey(ctx context.Context, entity *metadata.Entity, filters ...Filter) (any, bool, error) {
	recs, err := s.All(ctx, entity, filters...)
	if err != nil || len(recs) == 0 {
		return nil, false, err
	}
	return recs[len(recs)-1].Key(), true, nil
}

func (s *MemoryStore) Distinct(_ context.Context, entity *metadata.Entity, field string) ([]any, error) {
	if !entity.HasField(field) {
		return nil, fmt.Errorf("%s has no field %s", entity.Name, field)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []any
	for _, row := range s.tables[entity.Name] {
		v := row[field]
		if v == nil {
			continue
		}
		dup := false
		for _, seen := range out {
			if Compare(seen, v) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Upsert(ctx, rec)
		return err
	})
	return out, err
}

func (s *MemoryStore) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	return s.InTx(ctx, func(tx Tx) error {
		return tx.Delete(ctx, entity, key)
	})
}

func (s *MemoryStore) Clone(ctx context.Context, entity *metadata.Entity, key any, overrides map[string]any) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx Tx) error {
		var err error
		out, err = CloneRecord(ctx, tx, entity, key, overrides)
		return err
	})
	return out, err
}

// InTx holds the write lock for the duration of fn and restores the
// previous contents if fn fails.
func (s *MemoryStore) InTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := make(map[string]map[any]map[string]any, len(s.tables))
	for name, rows := range s.tables {
		copied := make(map[any]map[string]any, len(rows))
		for k, row := range rows {
			copied[k] = maps.Clone(row)
		}
		tables[name] = copied
	}
	seq := maps.Clone(s.seq)

	if err := fn(memTx{s}); err != nil {
		s.tables = tables
		s.seq = seq
		return err
	}
	return nil
}

func (t memTx) Get(_ context.Context, entity *metadata.Entity, key any) (*Record, error) {
	k, err := CoerceKey(entity, key)
	if err != nil {
		return nil, err
	}
	row, ok := t.s.tables[entity.Name][k]
	if !ok {
		return nil, fmt.Errorf("%s %v: %w", entity.Name, k, ErrNotFound)
	}
	return &Record{Entity: entity, Values: maps.Clone(row)}, nil
}

func (t memTx) All(_ context.Context, entity *metadata.Entity, filters ...Filter) ([]*Record, error) {
	resolved, err := ResolveFilters(entity, filters)
	if err != nil {
		return nil, err
	}
	var recs []*Record
	for _, row := range t.s.tables[entity.Name] {
		if Match(row, resolved) {
			recs = append(recs, &Record{Entity: entity, Values: maps.Clone(row)})
		}
	}
	sort.Slice(recs, func(i, j int) bool { return Compare(recs[i].Key(), recs[j].Key()) < 0 })
	return recs, nil
}

func (t memTx) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	entity := rec.Entity
	values, err := CoerceValues(entity, rec.Values)
	if err != nil {
		return nil, err
	}
	pkField := entity.PrimaryKey.Field
	key := values[pkField]
	if key == nil {
		switch {
		case entity.PrimaryKey.Generated && entity.PrimaryKey.Type == "uuid":
			key = uuid.NewString()
		case entity.PrimaryKey.Generated:
			key = t.nextKey(entity)
		default:
			return nil, fmt.Errorf("upsert %s: %s is required", entity.Name, pkField)
		}
		values[pkField] = key
	}
	if n, ok := key.(int64); ok && n > t.s.seq[entity.Name] {
		t.s.seq[entity.Name] = n
	}

	table := t.s.tables[entity.Name]
	if table == nil {
		table = make(map[any]map[string]any)
		t.s.tables[entity.Name] = table
	}

	row, exists := table[key]
	if exists {
		row = maps.Clone(row)
		maps.Copy(row, values)
	} else {
		row = values
		if err := ApplyDefaults(entity, row); err != nil {
			return nil, err
		}
		for _, f := range entity.Fields {
			if _, ok := row[f.Name]; !ok {
				row[f.Name] = nil
			}
		}
	}

	if err := t.checkUnique(entity, key, row); err != nil {
		return nil, err
	}
	if err := CheckReferences(ctx, t.s.registry, t, entity, row); err != nil {
		return nil, err
	}
	table[key] = row
	return &Record{Entity: entity, Values: maps.Clone(row)}, nil
}

func (t memTx) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	k, err := CoerceKey(entity, key)
	if err != nil {
		return err
	}
	if _, ok := t.s.tables[entity.Name][k]; !ok {
		return fmt.Errorf("%s %v: %w", entity.Name, k, ErrNotFound)
	}
	if t.s.registry != nil && len(t.s.registry.GetRelationsForSource(entity.Name)) > 0 {
		return DeleteWithDependents(ctx, t.s.registry, memDeleteTx{t}, entity, k)
	}
	delete(t.s.tables[entity.Name], k)
	return nil
}

// memDeleteTx removes rows without re-entering relation handling.
type memDeleteTx struct {
	memTx
}

func (t memDeleteTx) Delete(_ context.Context, entity *metadata.Entity, key any) error {
	delete(t.s.tables[entity.Name], key)
	return nil
}

func (t memTx) nextKey(entity *metadata.Entity) int64 {
	t.s.seq[entity.Name]++
	return t.s.seq[entity.Name]
}

func (t memTx) checkUnique(entity *metadata.Entity, key any, row map[string]any) error {
	for _, f := range entity.Fields {
		if !f.Unique || row[f.Name] == nil {
			continue
		}
		for otherKey, other := range t.s.tables[entity.Name] {
			if Compare(otherKey, key) == 0 {
				continue
			}
			if Compare(other[f.Name], row[f.Name]) == 0 {
				return fmt.Errorf("%s.%s = %v: %w", entity.Name, f.Name, row[f.Name], ErrUniqueViolation)
			}
		}
	}
	return nil
}
