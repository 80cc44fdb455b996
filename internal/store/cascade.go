package store

import (
	"context"
	"fmt"

	"pickdesk/internal/metadata"
)

// Lister is a Tx that can also list records. The embedded stores
// implement it to share relation handling.
type Lister interface {
	Tx
	All(ctx context.Context, entity *metadata.Entity, filters ...Filter) ([]*Record, error)
}

// DeleteWithDependents applies the on-delete behaviour of every relation
// sourced at entity, then deletes the record itself. SQL stores get the
// same behaviour from their foreign key clauses.
func DeleteWithDependents(ctx context.Context, reg *metadata.Registry, tx Lister, entity *metadata.Entity, key any) error {
	if reg != nil {
		for _, rel := range reg.GetRelationsForSource(entity.Name) {
			target := reg.GetEntity(rel.Target)
			children, err := tx.All(ctx, target, Eq(rel.TargetKey, key))
			if err != nil {
				return err
			}
			if len(children) == 0 {
				continue
			}
			switch rel.DefaultOnDelete() {
			case "restrict":
				return fmt.Errorf("delete %s %v: %d %s rows reference it: %w",
					entity.Name, key, len(children), target.Name, ErrForeignKeyViolation)
			case "detach":
				for _, child := range children {
					child.Set(rel.TargetKey, nil)
					if _, err := tx.Upsert(ctx, child); err != nil {
						return err
					}
				}
			default:
				for _, child := range children {
					if err := DeleteWithDependents(ctx, reg, tx, target, child.Key()); err != nil {
						return err
					}
				}
			}
		}
	}
	return tx.Delete(ctx, entity, key)
}

// CheckReferences verifies that every foreign key in values points at an
// existing parent.
func CheckReferences(ctx context.Context, reg *metadata.Registry, tx Tx, entity *metadata.Entity, values map[string]any) error {
	if reg == nil {
		return nil
	}
	for _, rel := range reg.GetRelationsForTarget(entity.Name) {
		fk := values[rel.TargetKey]
		if fk == nil {
			continue
		}
		parent := reg.GetEntity(rel.Source)
		if _, err := tx.Get(ctx, parent, fk); err != nil {
			if IsNotFound(err) {
				return fmt.Errorf("%s.%s = %v: no such %s: %w",
					entity.Name, rel.TargetKey, fk, parent.Name, ErrForeignKeyViolation)
			}
			return err
		}
	}
	return nil
}
