// Package boltstore is an entity store kept in a single bbolt file. Each
// entity gets a bucket named after its table; keys are stored so that
// byte order equals key order, which lets navigation seek directly.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

type Store struct {
	db       *bolt.DB
	registry *metadata.Registry
	logger   *zap.Logger
}

// Open opens (creating if needed) the bolt file at path and ensures a
// bucket exists for every registered entity.
func Open(path string, registry *metadata.Registry, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, e := range registry.AllEntities() {
			if _, err := tx.CreateBucketIfNotExists([]byte(e.Table)); err != nil {
				return fmt.Errorf("create bucket %s: %w", e.Table, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("bolt store opened", zap.String("path", path))
	return &Store{db: db, registry: registry, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, entity *metadata.Entity, key any) (*store.Record, error) {
	var rec *store.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = s.tx(tx).Get(ctx, entity, key)
		return err
	})
	return rec, err
}

func (s *Store) First(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (*store.Record, error) {
	var rec *store.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = s.tx(tx).edge(entity, filters, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) All(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) ([]*store.Record, error) {
	var recs []*store.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		recs, err = s.tx(tx).All(ctx, entity, filters...)
		return err
	})
	return recs, err
}

func (s *Store) MinKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error) {
	return s.edgeKey(entity, filters, false)
}

func (s *Store) MaxKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error) {
	return s.edgeKey(entity, filters, true)
}

func (s *Store) edgeKey(entity *metadata.Entity, filters []store.Filter, last bool) (any, bool, error) {
	var rec *store.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = s.tx(tx).edge(entity, filters, last)
		return err
	})
	if err != nil || rec == nil {
		return nil, false, err
	}
	return rec.Key(), true, nil
}

// Distinct returns the distinct non-NULL values of field in ascending order.
func (s *Store) Distinct(ctx context.Context, entity *metadata.Entity, field string) ([]any, error) {
	if !entity.HasField(field) {
		return nil, fmt.Errorf("%s has no field %s", entity.Name, field)
	}
	recs, err := s.All(ctx, entity)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, rec := range recs {
		v := rec.Values[field]
		if v == nil {
			continue
		}
		i := sort.Search(len(out), func(i int) bool { return store.Compare(out[i], v) >= 0 })
		if i < len(out) && store.Compare(out[i], v) == 0 {
			continue
		}
		out = append(out, nil)
		copy(out[i+1:], out[i:])
		out[i] = v
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, rec *store.Record) (*store.Record, error) {
	var out *store.Record
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Upsert(ctx, rec)
		return err
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	return s.InTx(ctx, func(tx store.Tx) error {
		return tx.Delete(ctx, entity, key)
	})
}

func (s *Store) Clone(ctx context.Context, entity *metadata.Entity, key any, overrides map[string]any) (*store.Record, error) {
	var out *store.Record
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = store.CloneRecord(ctx, tx, entity, key, overrides)
		return err
	})
	return out, err
}

// InTx runs fn in a bolt read-write transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(s.tx(tx))
	})
}

func (s *Store) tx(tx *bolt.Tx) *boltTx {
	return &boltTx{tx: tx, registry: s.registry}
}

type boltTx struct {
	tx       *bolt.Tx
	registry *metadata.Registry
	raw      bool // Delete skips relation handling
}

func (t *boltTx) bucket(entity *metadata.Entity) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(entity.Table))
	if b == nil {
		return nil, fmt.Errorf("bolt: no bucket for %s", entity.Name)
	}
	return b, nil
}

func (t *boltTx) Get(_ context.Context, entity *metadata.Entity, key any) (*store.Record, error) {
	b, err := t.bucket(entity)
	if err != nil {
		return nil, err
	}
	k, err := store.CoerceKey(entity, key)
	if err != nil {
		return nil, err
	}
	kb, err := marshalKey(k)
	if err != nil {
		return nil, err
	}
	v := b.Get(kb)
	if v == nil {
		return nil, fmt.Errorf("%s %v: %w", entity.Name, k, store.ErrNotFound)
	}
	return decode(entity, v)
}

func (t *boltTx) All(_ context.Context, entity *metadata.Entity, filters ...store.Filter) ([]*store.Record, error) {
	resolved, err := store.ResolveFilters(entity, filters)
	if err != nil {
		return nil, err
	}
	b, err := t.bucket(entity)
	if err != nil {
		return nil, err
	}
	var recs []*store.Record
	err = b.ForEach(func(_, v []byte) error {
		rec, err := decode(entity, v)
		if err != nil {
			return err
		}
		if store.Match(rec.Values, resolved) {
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// edge returns the first (or last) record matching filters, walking the
// cursor from the appropriate end.
func (t *boltTx) edge(entity *metadata.Entity, filters []store.Filter, last bool) (*store.Record, error) {
	resolved, err := store.ResolveFilters(entity, filters)
	if err != nil {
		return nil, err
	}
	b, err := t.bucket(entity)
	if err != nil {
		return nil, err
	}
	c := b.Cursor()
	var k, v []byte
	if last {
		k, v = c.Last()
	} else {
		k, v = c.First()
	}
	for k != nil {
		rec, err := decode(entity, v)
		if err != nil {
			return nil, err
		}
		if store.Match(rec.Values, resolved) {
			return rec, nil
		}
		if last {
			k, v = c.Prev()
		} else {
			k, v = c.Next()
		}
	}
	return nil, nil
}

func (t *boltTx) Upsert(ctx context.Context, rec *store.Record) (*store.Record, error) {
	entity := rec.Entity
	b, err := t.bucket(entity)
	if err != nil {
		return nil, err
	}
	values, err := store.CoerceValues(entity, rec.Values)
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
			seq, err := b.NextSequence()
			if err != nil {
				return nil, err
			}
			key = int64(seq)
		default:
			return nil, fmt.Errorf("upsert %s: %s is required", entity.Name, pkField)
		}
		values[pkField] = key
	}
	kb, err := marshalKey(key)
	if err != nil {
		return nil, err
	}
	if n, ok := key.(int64); ok && uint64(n) > b.Sequence() {
		if err := b.SetSequence(uint64(n)); err != nil {
			return nil, err
		}
	}

	row := values
	if existing := b.Get(kb); existing != nil {
		old, err := decode(entity, existing)
		if err != nil {
			return nil, err
		}
		row = old.Values
		for k, v := range values {
			row[k] = v
		}
	} else {
		if err := store.ApplyDefaults(entity, row); err != nil {
			return nil, err
		}
		for _, f := range entity.Fields {
			if _, ok := row[f.Name]; !ok {
				row[f.Name] = nil
			}
		}
	}

	if err := t.checkUnique(entity, b, kb, row); err != nil {
		return nil, err
	}
	if err := store.CheckReferences(ctx, t.registry, t, entity, row); err != nil {
		return nil, err
	}
	data, err := encode(entity, row)
	if err != nil {
		return nil, err
	}
	if err := b.Put(kb, data); err != nil {
		return nil, err
	}
	return &store.Record{Entity: entity, Values: row}, nil
}

func (t *boltTx) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	b, err := t.bucket(entity)
	if err != nil {
		return err
	}
	k, err := store.CoerceKey(entity, key)
	if err != nil {
		return err
	}
	kb, err := marshalKey(k)
	if err != nil {
		return err
	}
	if t.raw {
		return b.Delete(kb)
	}
	if b.Get(kb) == nil {
		return fmt.Errorf("%s %v: %w", entity.Name, k, store.ErrNotFound)
	}
	raw := &boltTx{tx: t.tx, registry: t.registry, raw: true}
	return store.DeleteWithDependents(ctx, t.registry, raw, entity, k)
}

func (t *boltTx) checkUnique(entity *metadata.Entity, b *bolt.Bucket, kb []byte, row map[string]any) error {
	var unique []string
	for _, f := range entity.Fields {
		if f.Unique && row[f.Name] != nil {
			unique = append(unique, f.Name)
		}
	}
	if len(unique) == 0 {
		return nil
	}
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if string(k) == string(kb) {
			continue
		}
		other, err := decode(entity, v)
		if err != nil {
			return err
		}
		for _, name := range unique {
			if store.Compare(other.Values[name], row[name]) == 0 {
				return fmt.Errorf("%s.%s = %v: %w", entity.Name, name, row[name], store.ErrUniqueViolation)
			}
		}
	}
	return nil
}

// marshalKey encodes integer keys big-endian so that byte order matches
// numeric order. Negative integer keys are not supported.
func marshalKey(key any) ([]byte, error) {
	switch k := key.(type) {
	case int64:
		if k < 0 {
			return nil, fmt.Errorf("bolt: negative key %d", k)
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(k))
		return b, nil
	case string:
		return []byte(k), nil
	}
	return nil, fmt.Errorf("bolt: unsupported key type %T", key)
}

func encode(entity *metadata.Entity, values map[string]any) ([]byte, error) {
	out := make(map[string]any, len(values))
	for _, f := range entity.Fields {
		if v, ok := values[f.Name]; ok {
			out[f.Name] = f.Encode(v)
		}
	}
	return json.Marshal(out)
}

func decode(entity *metadata.Entity, data []byte) (*store.Record, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entity.Name, err)
	}
	rec := store.NewRecord(entity)
	for _, f := range entity.Fields {
		v, ok := raw[f.Name]
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
