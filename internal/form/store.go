package form

import (
	"context"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// Store is the keyed entity store the controllers persist through.
// store.Store, store.MemoryStore and boltstore.Store implement it.
type Store interface {
	Get(ctx context.Context, entity *metadata.Entity, key any) (*store.Record, error)
	First(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (*store.Record, error)
	All(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) ([]*store.Record, error)
	MinKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error)
	MaxKey(ctx context.Context, entity *metadata.Entity, filters ...store.Filter) (any, bool, error)
	Distinct(ctx context.Context, entity *metadata.Entity, field string) ([]any, error)
	Upsert(ctx context.Context, rec *store.Record) (*store.Record, error)
	Delete(ctx context.Context, entity *metadata.Entity, key any) error
	Clone(ctx context.Context, entity *metadata.Entity, key any, overrides map[string]any) (*store.Record, error)
	InTx(ctx context.Context, fn func(store.Tx) error) error
}
