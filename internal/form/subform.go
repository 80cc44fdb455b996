package form

import (
	"context"
	"fmt"
	"slices"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// Subform edits the dependents of the parent's record through a
// one_to_many relation. Each row is a Controller fixed on one dependent
// record. Rows are written after the parent, in the parent's transaction.
type Subform struct {
	def      FieldDef
	kind     SubformField
	parent   *Controller
	relation *metadata.Relation
	entity   *metadata.Entity

	parentKey any
	rows      []*Controller
	deleted   []*store.Record
	forced    bool

	lastDirty bool
	dirtyFns  []func(bool)
}

func newSubform(parent *Controller, def FieldDef, kind SubformField) *Subform {
	rel := parent.registry.GetRelation(kind.Relation)
	return &Subform{
		def:      def,
		kind:     kind,
		parent:   parent,
		relation: rel,
		entity:   parent.registry.GetEntity(rel.Target),
	}
}

func (sf *Subform) Name() string                 { return sf.def.Name }
func (sf *Subform) Label() string                { return sf.def.DisplayLabel() }
func (sf *Subform) Def() FieldDef                { return sf.def }
func (sf *Subform) Entity() *metadata.Entity     { return sf.entity }
func (sf *Subform) Relation() *metadata.Relation { return sf.relation }
func (sf *Subform) OnDirtyChanged(fn func(bool)) { sf.dirtyFns = append(sf.dirtyFns, fn) }
func (sf *Subform) Len() int                     { return len(sf.rows) }
func (sf *Subform) Rows() []*Controller          { return slices.Clone(sf.rows) }

// Row returns the i'th live row, or nil.
func (sf *Subform) Row(i int) *Controller {
	if i < 0 || i >= len(sf.rows) {
		return nil
	}
	return sf.rows[i]
}

// IsDirty reports unsaved row edits, added rows and removed rows.
func (sf *Subform) IsDirty() bool {
	if sf.forced || len(sf.deleted) > 0 {
		return true
	}
	for _, row := range sf.rows {
		if row.IsNewRecord() || row.IsDirty() {
			return true
		}
	}
	return false
}

func (sf *Subform) SetDirty(dirty, emit bool) {
	sf.forced = dirty
	if !dirty {
		for _, row := range sf.rows {
			for _, el := range row.elements {
				el.SetDirty(false, false)
			}
			row.lastDirty = false
		}
	}
	if emit {
		sf.dirtyChanged()
	} else {
		sf.lastDirty = sf.IsDirty()
	}
}

// LoadFromRecord rebuilds the rows from the dependents of parent. A parent
// without a key has none.
func (sf *Subform) LoadFromRecord(ctx context.Context, parent *store.Record) error {
	sf.rows = nil
	sf.deleted = nil
	sf.forced = false
	sf.parentKey = nil
	if parent != nil && parent.HasKey() {
		sf.parentKey = parent.Key()
		recs, err := sf.parent.store.All(ctx, sf.entity, store.Eq(sf.relation.TargetKey, sf.parentKey))
		if err != nil {
			return fmt.Errorf("load %s: %w", sf.def.Name, err)
		}
		for _, rec := range recs {
			row, err := sf.newRow(ctx, rec)
			if err != nil {
				return err
			}
			sf.rows = append(sf.rows, row)
		}
	}
	sf.lastDirty = false
	return nil
}

// AddRow appends a new dependent whose foreign key is the parent's key,
// which is nil until the parent is saved.
func (sf *Subform) AddRow(ctx context.Context) (*Controller, error) {
	row, err := sf.newRow(ctx, nil)
	if err != nil {
		return nil, err
	}
	sf.rows = append(sf.rows, row)
	sf.dirtyChanged()
	return row, nil
}

// DeleteRow removes row i. A stored row moves to the pending-delete list
// and the store is not touched until the parent is saved; a row that was
// never saved is simply dropped.
func (sf *Subform) DeleteRow(i int) error {
	if i < 0 || i >= len(sf.rows) {
		return fmt.Errorf("%s: no row %d", sf.def.Name, i)
	}
	row := sf.rows[i]
	sf.rows = slices.Delete(sf.rows, i, i+1)
	if row.record.HasKey() {
		sf.deleted = append(sf.deleted, row.record)
	}
	sf.dirtyChanged()
	return nil
}

// SaveToRecord writes the rows under parent's key in their own
// transaction and reloads them. Controller.Save uses the parent's
// transaction instead.
func (sf *Subform) SaveToRecord(ctx context.Context, parent *store.Record) error {
	if parent == nil || !parent.HasKey() {
		return fmt.Errorf("save %s: parent record has no key", sf.def.Name)
	}
	snap := sf.snapshot()
	err := sf.parent.store.InTx(ctx, func(tx store.Tx) error {
		return sf.saveInTx(ctx, tx, parent.Key())
	})
	if err != nil {
		sf.restore(snap)
		return err
	}
	sf.committed()
	return sf.LoadFromRecord(ctx, parent)
}

// saveInTx upserts new, edited and re-parented rows, then deletes removed
// rows.
func (sf *Subform) saveInTx(ctx context.Context, tx store.Tx, parentKey any) error {
	fk := sf.relation.TargetKey
	fkField := sf.entity.GetField(fk)
	key, err := fkField.Coerce(parentKey)
	if err != nil {
		return fmt.Errorf("%s: parent key %v: %w", sf.def.Name, parentKey, err)
	}
	for _, row := range sf.rows {
		dirty := row.IsDirty()
		if err := row.pushAdapters(ctx); err != nil {
			return err
		}
		current, _ := row.record.Get(fk)
		if row.record.HasKey() && !dirty && sameValue(current, key) {
			continue
		}
		row.record.Set(fk, key)
		if _, err := tx.Upsert(ctx, row.record); err != nil {
			return fmt.Errorf("save %s row: %w", sf.def.Name, err)
		}
	}
	for _, rec := range sf.deleted {
		if err := tx.Delete(ctx, sf.entity, rec.Key()); err != nil && !store.IsNotFound(err) {
			return fmt.Errorf("delete %s row %v: %w", sf.def.Name, rec.Key(), err)
		}
	}
	return nil
}

func (sf *Subform) committed() {
	sf.deleted = nil
	sf.forced = false
}

func (sf *Subform) rowOptions() Options {
	p := sf.parent
	return Options{
		Name:     p.name + "." + sf.def.Name,
		Entity:   sf.entity,
		Registry: p.registry,
		Fields:   sf.kind.Fields,
		Store:    p.store,
		Choices:  p.choices,
		Logger:   p.logger,
	}
}

// newRow builds a row controller on rec, or on a new dependent when rec
// is nil.
func (sf *Subform) newRow(ctx context.Context, rec *store.Record) (*Controller, error) {
	row := newController(sf.rowOptions(), true)
	if rec == nil {
		rec = row.blankRecord()
		rec.Set(sf.relation.TargetKey, sf.parentKey)
	}
	if err := row.show(ctx, rec); err != nil {
		return nil, fmt.Errorf("load %s row: %w", sf.def.Name, err)
	}
	row.OnStateChange(func(State) { sf.dirtyChanged() })
	return row, nil
}

func (sf *Subform) dirtyChanged() {
	if d := sf.IsDirty(); d != sf.lastDirty {
		sf.lastDirty = d
		for _, fn := range sf.dirtyFns {
			fn(d)
		}
	}
}

type subformState struct {
	parentKey any
	rows      []*Controller
	rowStates []memento
	deleted   []*store.Record
	forced    bool
}

func (sf *Subform) snapshot() any {
	s := subformState{
		parentKey: sf.parentKey,
		rows:      slices.Clone(sf.rows),
		deleted:   slices.Clone(sf.deleted),
		forced:    sf.forced,
	}
	for _, row := range sf.rows {
		s.rowStates = append(s.rowStates, row.snapshot())
	}
	return s
}

func (sf *Subform) restore(state any) {
	s := state.(subformState)
	sf.parentKey = s.parentKey
	sf.rows = s.rows
	sf.deleted = s.deleted
	sf.forced = s.forced
	for i, row := range sf.rows {
		row.restore(s.rowStates[i])
	}
	sf.dirtyChanged()
}
