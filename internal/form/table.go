package form

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// Table edits every record of an entity as a list of rows. Rows are added,
// edited and removed in memory and written together by Save. Each row is
// a Controller fixed on one record, as in a Subform.
type Table struct {
	name     string
	entity   *metadata.Entity
	rowOpts  Options
	store    Store
	prompter Prompter
	choices  *ChoiceCache
	logger   *zap.Logger

	rows    []*Controller
	deleted []*store.Record
}

// NewTable validates the column definitions and loads every record in key
// order. Columns follow the subform row rules: no lookups, no subforms.
func NewTable(ctx context.Context, opts Options) (*Table, error) {
	if opts.Store == nil {
		return nil, configError("%s: no store", opts.Name)
	}
	if err := validateDefs(opts.Entity, opts.Registry, opts.Fields, opts.Choices, true); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = opts.Entity.Name
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("table", name))

	rowOpts := opts
	rowOpts.Name = name
	rowOpts.Prompter = nil
	rowOpts.Logger = logger
	t := &Table{
		name:     name,
		entity:   opts.Entity,
		rowOpts:  rowOpts,
		store:    opts.Store,
		prompter: opts.Prompter,
		choices:  opts.Choices,
		logger:   logger,
	}
	if err := t.load(ctx); err != nil {
		return nil, t.fail(ctx, KindPersistence, "open", err)
	}
	return t, nil
}

func (t *Table) Name() string             { return t.name }
func (t *Table) Label() string            { return t.name }
func (t *Table) Entity() *metadata.Entity { return t.entity }
func (t *Table) Defs() []FieldDef         { return t.rowOpts.Fields }
func (t *Table) Len() int                 { return len(t.rows) }
func (t *Table) Rows() []*Controller      { return slices.Clone(t.rows) }

// Row returns the i'th row, or nil.
func (t *Table) Row(i int) *Controller {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i]
}

// IsDirty reports edited, added and removed rows.
func (t *Table) IsDirty() bool {
	if len(t.deleted) > 0 {
		return true
	}
	for _, row := range t.rows {
		if row.IsNewRecord() || row.IsDirty() {
			return true
		}
	}
	return false
}

// AddRow appends a new record holding the column initial values. Nothing
// is written until Save.
func (t *Table) AddRow(ctx context.Context) (*Controller, error) {
	row := newController(t.rowOpts, true)
	if err := row.show(ctx, row.blankRecord()); err != nil {
		return nil, fmt.Errorf("add %s row: %w", t.name, err)
	}
	t.rows = append(t.rows, row)
	return row, nil
}

// DeleteRow removes row i. A stored row is deleted by the next Save; a
// row that was never saved is dropped.
func (t *Table) DeleteRow(i int) error {
	if i < 0 || i >= len(t.rows) {
		return fmt.Errorf("%s: no row %d", t.name, i)
	}
	row := t.rows[i]
	t.rows = slices.Delete(t.rows, i, i+1)
	if row.record.HasKey() {
		t.deleted = append(t.deleted, row.record)
	}
	return nil
}

// Save writes new and edited rows and deletes removed ones in one
// transaction, then reloads the table. On failure the rows keep the
// user's edits.
func (t *Table) Save(ctx context.Context) error {
	snap := t.snapshot()
	var written, removed int
	err := t.store.InTx(ctx, func(tx store.Tx) error {
		for _, row := range t.rows {
			if row.record.HasKey() && !row.IsDirty() {
				continue
			}
			if err := row.pushAdapters(ctx); err != nil {
				return err
			}
			if _, err := tx.Upsert(ctx, row.record); err != nil {
				return fmt.Errorf("save %s row: %w", t.name, err)
			}
			written++
		}
		for _, rec := range t.deleted {
			if err := tx.Delete(ctx, t.entity, rec.Key()); err != nil && !store.IsNotFound(err) {
				return fmt.Errorf("delete %s row %v: %w", t.name, rec.Key(), err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		t.restore(snap)
		return t.fail(ctx, KindPersistence, "save", err)
	}
	t.logger.Info("table saved", zap.Int("written", written), zap.Int("deleted", removed))

	if t.choices != nil {
		if err := t.choices.RefreshAll(ctx); err != nil {
			t.logger.Warn("refresh choice lists", zap.Error(err))
		}
	}
	if err := t.load(ctx); err != nil {
		return t.fail(ctx, KindPersistence, "save", err)
	}
	return nil
}

// Reload re-reads every record. Unsaved changes go through the same
// save/discard/cancel prompt as record navigation.
func (t *Table) Reload(ctx context.Context) error {
	if t.IsDirty() {
		answer := AnswerNone
		if t.prompter != nil {
			answer = t.prompter.AskSaveChanges(ctx, t.name)
		}
		switch answer {
		case AnswerYes:
			return t.Save(ctx)
		case AnswerNo:
			t.logger.Debug("changes discarded", zap.String("op", "reload"))
		default:
			t.logger.Debug("operation cancelled", zap.String("op", "reload"), zap.Stringer("answer", answer))
			return nil
		}
	}
	if err := t.load(ctx); err != nil {
		return t.fail(ctx, KindPersistence, "reload", err)
	}
	return nil
}

func (t *Table) load(ctx context.Context) error {
	recs, err := t.store.All(ctx, t.entity)
	if err != nil {
		return err
	}
	rows := make([]*Controller, 0, len(recs))
	for _, rec := range recs {
		row := newController(t.rowOpts, true)
		if err := row.show(ctx, rec); err != nil {
			return fmt.Errorf("load %s row %v: %w", t.name, rec.Key(), err)
		}
		rows = append(rows, row)
	}
	t.rows = rows
	t.deleted = nil
	t.logger.Debug("table loaded", zap.Int("rows", len(rows)))
	return nil
}

func (t *Table) fail(ctx context.Context, kind ErrorKind, op string, err error) error {
	fe := &Error{Kind: kind, Op: op, Err: err}
	t.logger.Warn("table operation failed", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	if t.prompter != nil {
		t.prompter.ShowError(ctx, fe)
	}
	return fe
}

type tableState struct {
	rows      []*Controller
	rowStates []memento
	deleted   []*store.Record
}

func (t *Table) snapshot() tableState {
	s := tableState{rows: slices.Clone(t.rows), deleted: slices.Clone(t.deleted)}
	for _, row := range t.rows {
		s.rowStates = append(s.rowStates, row.snapshot())
	}
	return s
}

func (t *Table) restore(s tableState) {
	t.rows = s.rows
	t.deleted = s.deleted
	for i, row := range t.rows {
		row.restore(s.rowStates[i])
	}
}
