package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pickdesk/internal/metadata"
)

type Migrator struct {
	store    *Store
	registry *metadata.Registry
}

func NewMigrator(store *Store, registry *metadata.Registry) *Migrator {
	return &Migrator{store: store, registry: registry}
}

// MigrateAll migrates every registered entity in registration order, so
// parents must be registered before the entities that reference them.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	for _, entity := range m.registry.AllEntities() {
		if err := m.Migrate(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	cols := []string{m.store.Dialect.KeyColumnDef(entity)}
	for i := range entity.Fields {
		f := &entity.Fields[i]
		if f.Name == entity.PrimaryKey.Field {
			continue
		}
		cols = append(cols, m.buildColumnDef(entity, f))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	m.store.logger.Info("created table", zap.String("table", entity.Table))

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for i := range entity.Fields {
		f := &entity.Fields[i]
		if _, ok := existing[f.Name]; ok {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", entity.Table, m.buildColumnDef(entity, f))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
		m.store.logger.Info("added column", zap.String("table", entity.Table), zap.String("column", f.Name))
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	col := f.Name + " " + m.store.Dialect.ColumnType(f.Type, f.Precision)

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	if f.Default != nil {
		switch v := f.Default.(type) {
		case string:
			col += fmt.Sprintf(" DEFAULT '%s'", strings.ReplaceAll(v, "'", "''"))
		case bool:
			if m.store.Dialect.Name() == "sqlite" {
				if v {
					col += " DEFAULT 1"
				} else {
					col += " DEFAULT 0"
				}
			} else {
				col += fmt.Sprintf(" DEFAULT %t", v)
			}
		default:
			col += fmt.Sprintf(" DEFAULT %v", v)
		}
	}

	if ref := m.foreignKey(entity, f); ref != "" {
		col += ref
	}

	return col
}

// foreignKey returns the REFERENCES clause when f is the target key of a
// registered relation.
func (m *Migrator) foreignKey(entity *metadata.Entity, f *metadata.Field) string {
	if m.registry == nil {
		return ""
	}
	for _, rel := range m.registry.GetRelationsForTarget(entity.Name) {
		if rel.TargetKey != f.Name {
			continue
		}
		parent := m.registry.GetEntity(rel.Source)
		if parent == nil {
			continue
		}
		action := "CASCADE"
		switch rel.DefaultOnDelete() {
		case "detach":
			action = "SET NULL"
		case "restrict":
			action = "RESTRICT"
		}
		return fmt.Sprintf(" REFERENCES %s(%s) ON DELETE %s", parent.Table, parent.PrimaryKey.Field, action)
	}
	return ""
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if f.Unique {
			sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
				entity.Table, f.Name, entity.Table, f.Name)
			if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
				return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
			}
		}
	}
	if m.registry != nil {
		for _, rel := range m.registry.GetRelationsForTarget(entity.Name) {
			sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
				entity.Table, rel.TargetKey, entity.Table, rel.TargetKey)
			if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
				return fmt.Errorf("create index on %s.%s: %w", entity.Table, rel.TargetKey, err)
			}
		}
	}
	return nil
}
