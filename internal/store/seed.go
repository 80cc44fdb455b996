package store

import (
	"context"
	"fmt"

	"pickdesk/internal/metadata"
)

// Seeder is the part of a store Seed needs.
type Seeder interface {
	MinKey(ctx context.Context, entity *metadata.Entity, filters ...Filter) (any, bool, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Seed inserts rows into entity when it has no records yet. It returns the
// number of rows inserted; an already populated entity is left alone.
func Seed(ctx context.Context, s Seeder, entity *metadata.Entity, rows []map[string]any) (int, error) {
	_, ok, err := s.MinKey(ctx, entity)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", entity.Name, err)
	}
	if ok {
		return 0, nil
	}
	err = s.InTx(ctx, func(tx Tx) error {
		for _, values := range rows {
			rec := NewRecord(entity)
			for k, v := range values {
				rec.Set(k, v)
			}
			if _, err := tx.Upsert(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", entity.Name, err)
	}
	return len(rows), nil
}
