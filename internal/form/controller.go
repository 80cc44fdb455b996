package form

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// Options configures a Controller.
type Options struct {
	Name     string
	Entity   *metadata.Entity
	Registry *metadata.Registry // required when Fields contains subforms
	Fields   []FieldDef
	Store    Store
	Prompter Prompter // nil: every guarded operation with unsaved changes is cancelled
	Choices  *ChoiceCache
	Logger   *zap.Logger
}

// State is published on every load and whenever the form's dirtiness
// changes.
type State struct {
	Key   any
	New   bool
	Dirty bool
}

// Controller edits one record of an entity at a time. It is not safe for
// concurrent use.
type Controller struct {
	name     string
	entity   *metadata.Entity
	registry *metadata.Registry
	defs     []FieldDef
	store    Store
	prompter Prompter
	choices  *ChoiceCache
	logger   *zap.Logger
	initial  map[string]any
	fixed    bool

	record   *store.Record
	elements []Element
	adapters []Adapter
	lookups  []*LookupAdapter
	subforms []*Subform

	lastDirty bool
	stateFns  []func(State)
}

// New validates the field definitions, builds the form and shows the
// first record in key order. On an empty store the form stays on a new
// record.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, configError("%s: no store", opts.Name)
	}
	if err := validateDefs(opts.Entity, opts.Registry, opts.Fields, opts.Choices, false); err != nil {
		return nil, err
	}
	c := newController(opts, false)
	if err := c.refreshLookups(ctx); err != nil {
		return nil, c.fail(ctx, KindPersistence, "open", err)
	}
	if err := c.show(ctx, c.blankRecord()); err != nil {
		return nil, c.fail(ctx, KindPersistence, "open", err)
	}
	if err := c.First(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newController(opts Options, fixed bool) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := opts.Name
	if name == "" {
		name = opts.Entity.Name
	}
	if !fixed {
		logger = logger.With(zap.String("form", name))
	}
	c := &Controller{
		name:     name,
		entity:   opts.Entity,
		registry: opts.Registry,
		defs:     opts.Fields,
		store:    opts.Store,
		prompter: opts.Prompter,
		choices:  opts.Choices,
		logger:   logger,
		initial:  make(map[string]any),
		fixed:    fixed,
	}

	for _, d := range opts.Fields {
		var el Element
		switch k := d.Kind.(type) {
		case SubformField:
			sf := newSubform(c, d, k)
			c.subforms = append(c.subforms, sf)
			el = sf
		case LookupField:
			l := newLookupAdapter(d, c.entity, c.store, c.choices)
			attr := d.Attribute()
			l.OnSelect(func(ctx context.Context, v any) error {
				if k.Handler != nil {
					return k.Handler(ctx, c, v)
				}
				return c.LoadByField(ctx, attr, v)
			})
			c.lookups = append(c.lookups, l)
			c.adapters = append(c.adapters, l)
			el = l
		default:
			f := c.entity.GetField(d.Attribute())
			if d.Initial != nil {
				if v, err := f.Coerce(d.Initial); err == nil {
					c.initial[d.Attribute()] = v
				}
			}
			a := newFieldAdapter(d, f, c.choices)
			c.adapters = append(c.adapters, a)
			el = a
		}
		el.OnDirtyChanged(func(bool) { c.dirtyChanged() })
		c.elements = append(c.elements, el)
	}
	return c
}

func (c *Controller) Name() string                 { return c.name }
func (c *Controller) Entity() *metadata.Entity     { return c.entity }
func (c *Controller) Defs() []FieldDef             { return c.defs }
func (c *Controller) Elements() []Element          { return c.elements }
func (c *Controller) OnStateChange(fn func(State)) { c.stateFns = append(c.stateFns, fn) }

// Record returns a copy of the record on display.
func (c *Controller) Record() *store.Record {
	if c.record == nil {
		return nil
	}
	return c.record.Copy()
}

// Key returns the primary key of the record on display, nil for a new record.
func (c *Controller) Key() any {
	if c.record == nil {
		return nil
	}
	return c.record.Key()
}

// IsNewRecord reports whether the record on display has never been saved.
func (c *Controller) IsNewRecord() bool {
	return c.record == nil || !c.record.HasKey()
}

func (c *Controller) CanDelete() bool {
	return !c.fixed && !c.IsNewRecord()
}

// IsDirty reports whether any field or subform holds unsaved changes.
func (c *Controller) IsDirty() bool {
	for _, el := range c.elements {
		if el.IsDirty() {
			return true
		}
	}
	return false
}

func (c *Controller) State() State {
	return State{Key: c.Key(), New: c.IsNewRecord(), Dirty: c.IsDirty()}
}

// Field returns the adapter named name, or nil.
func (c *Controller) Field(name string) Adapter {
	for _, a := range c.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (c *Controller) Lookup(name string) *LookupAdapter {
	for _, l := range c.lookups {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

func (c *Controller) Subform(name string) *Subform {
	for _, sf := range c.subforms {
		if sf.Name() == name {
			return sf
		}
	}
	return nil
}

// Pages lists the named layout pages in definition order.
func (c *Controller) Pages() []string {
	var pages []string
	seen := make(map[string]bool)
	for _, d := range c.defs {
		if p := d.Position.Page; p != "" && !seen[p] {
			seen[p] = true
			pages = append(pages, p)
		}
	}
	return pages
}

func (c *Controller) First(ctx context.Context) error {
	return c.navigate(ctx, "first", func() (any, bool, error) {
		return c.store.MinKey(ctx, c.entity)
	})
}

func (c *Controller) Previous(ctx context.Context) error {
	if !c.fixed && c.IsNewRecord() {
		return nil
	}
	return c.navigate(ctx, "previous", func() (any, bool, error) {
		return c.store.MaxKey(ctx, c.entity, store.Lt(c.entity.PrimaryKey.Field, c.Key()))
	})
}

func (c *Controller) Next(ctx context.Context) error {
	if !c.fixed && c.IsNewRecord() {
		return nil
	}
	return c.navigate(ctx, "next", func() (any, bool, error) {
		return c.store.MinKey(ctx, c.entity, store.Gt(c.entity.PrimaryKey.Field, c.Key()))
	})
}

func (c *Controller) Last(ctx context.Context) error {
	return c.navigate(ctx, "last", func() (any, bool, error) {
		return c.store.MaxKey(ctx, c.entity)
	})
}

// navigate runs the dirty guard and loads the target. Without a target the
// form stays where it is and nobody is asked about unsaved changes. The
// target is resolved again after the guard, since saving may add or
// re-key the record on display.
func (c *Controller) navigate(ctx context.Context, op string, target func() (any, bool, error)) error {
	if c.fixed {
		return ErrFixedRecord
	}
	if _, ok, err := c.resolve(ctx, op, target); err != nil || !ok {
		return err
	}
	proceed, err := c.guard(ctx, op)
	if err != nil || !proceed {
		return err
	}
	key, ok, err := c.resolve(ctx, op, target)
	if err != nil || !ok {
		return err
	}
	return c.load(ctx, op, key)
}

func (c *Controller) resolve(ctx context.Context, op string, target func() (any, bool, error)) (any, bool, error) {
	key, ok, err := target()
	if err != nil {
		return nil, false, c.fail(ctx, KindPersistence, op, err)
	}
	if !ok {
		c.logger.Debug("no record to move to", zap.String("op", op), zap.Any("key", c.Key()))
	}
	return key, ok, nil
}

// LoadByKey shows the record with the given primary key.
func (c *Controller) LoadByKey(ctx context.Context, key any) error {
	if c.fixed {
		return ErrFixedRecord
	}
	k, err := store.CoerceKey(c.entity, key)
	if err != nil {
		return c.fail(ctx, KindNotFound, "load", err)
	}
	return c.jump(ctx, "load", func() (*store.Record, error) {
		return c.store.Get(ctx, c.entity, k)
	})
}

// LoadByField shows the first record, in key order, whose field equals value.
func (c *Controller) LoadByField(ctx context.Context, field string, value any) error {
	if c.fixed {
		return ErrFixedRecord
	}
	f := c.entity.GetField(field)
	if f == nil {
		return c.fail(ctx, KindConfig, "lookup", errors.New(c.entity.Name+" has no field "+field))
	}
	v, err := f.Coerce(value)
	if err != nil {
		return c.fail(ctx, KindNotFound, "lookup", err)
	}
	return c.jump(ctx, "lookup", func() (*store.Record, error) {
		return c.store.First(ctx, c.entity, store.Eq(field, v))
	})
}

func (c *Controller) jump(ctx context.Context, op string, fetch func() (*store.Record, error)) error {
	rec, err := fetch()
	if err != nil {
		if store.IsNotFound(err) {
			return c.fail(ctx, KindNotFound, op, err)
		}
		return c.fail(ctx, KindPersistence, op, err)
	}
	proceed, err := c.guard(ctx, op)
	if err != nil || !proceed {
		return err
	}
	return c.load(ctx, op, rec.Key())
}

// Add replaces the record on display with a new one holding the initial
// values. Nothing is written until Save.
func (c *Controller) Add(ctx context.Context) error {
	if c.fixed {
		return ErrFixedRecord
	}
	proceed, err := c.guard(ctx, "add")
	if err != nil || !proceed {
		return err
	}
	if err := c.show(ctx, c.blankRecord()); err != nil {
		return c.fail(ctx, KindPersistence, "add", err)
	}
	return nil
}

// Save writes the form to the store. The record and its subform rows are
// written in one transaction; on failure the form keeps the user's edits.
func (c *Controller) Save(ctx context.Context) error {
	if c.fixed {
		return ErrFixedRecord
	}
	snap := c.snapshot()
	if err := c.pushAdapters(ctx); err != nil {
		c.restore(snap)
		return c.fail(ctx, KindPersistence, "save", err)
	}

	var saved *store.Record
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		rec, err := tx.Upsert(ctx, c.record)
		if err != nil {
			return err
		}
		saved = rec
		for _, sf := range c.subforms {
			if err := sf.saveInTx(ctx, tx, rec.Key()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.restore(snap)
		return c.fail(ctx, KindPersistence, "save", err)
	}
	for _, sf := range c.subforms {
		sf.committed()
	}
	c.logger.Info("record saved", zap.Any("key", saved.Key()))

	c.refreshAfterWrite(ctx)
	rec, err := c.store.Get(ctx, c.entity, saved.Key())
	if err != nil {
		c.logger.Warn("reload after save failed", zap.Any("key", saved.Key()), zap.Error(err))
		rec = saved
	}
	if err := c.show(ctx, rec); err != nil {
		return c.fail(ctx, KindPersistence, "save", err)
	}
	return nil
}

// Delete removes the record on display after confirmation and moves to the
// next record, else the previous one, else a new record.
func (c *Controller) Delete(ctx context.Context) error {
	if c.fixed {
		return ErrFixedRecord
	}
	if c.IsNewRecord() {
		return ErrNewRecord
	}
	proceed, err := c.guard(ctx, "delete")
	if err != nil || !proceed {
		return err
	}
	key := c.Key()
	if c.prompter == nil || c.prompter.AskConfirmDelete(ctx, c.name, key) != AnswerYes {
		c.logger.Debug("delete declined", zap.Any("key", key))
		return nil
	}
	if err := c.store.Delete(ctx, c.entity, key); err != nil {
		return c.fail(ctx, KindPersistence, "delete", err)
	}
	c.logger.Info("record deleted", zap.Any("key", key))
	c.refreshAfterWrite(ctx)

	pk := c.entity.PrimaryKey.Field
	next, ok, err := c.store.MinKey(ctx, c.entity, store.Gt(pk, key))
	if err == nil && !ok {
		next, ok, err = c.store.MaxKey(ctx, c.entity, store.Lt(pk, key))
	}
	if err != nil {
		return c.fail(ctx, KindPersistence, "delete", err)
	}
	if ok {
		return c.load(ctx, "delete", next)
	}
	if err := c.show(ctx, c.blankRecord()); err != nil {
		return c.fail(ctx, KindPersistence, "delete", err)
	}
	return nil
}

// Duplicate stores a copy of the record on display under a new key, with
// overrides applied, and shows the copy. Subform rows are not copied.
func (c *Controller) Duplicate(ctx context.Context, overrides map[string]any) error {
	if c.fixed {
		return ErrFixedRecord
	}
	if c.IsNewRecord() {
		return ErrNewRecord
	}
	proceed, err := c.guard(ctx, "duplicate")
	if err != nil || !proceed {
		return err
	}
	rec, err := c.store.Clone(ctx, c.entity, c.Key(), overrides)
	if err != nil {
		return c.fail(ctx, KindPersistence, "duplicate", err)
	}
	c.logger.Info("record duplicated", zap.Any("from", c.Key()), zap.Any("key", rec.Key()))
	c.refreshAfterWrite(ctx)
	return c.load(ctx, "duplicate", rec.Key())
}

// RefreshChoices rebuilds the choice cache and every lookup candidate list.
func (c *Controller) RefreshChoices(ctx context.Context) error {
	if c.choices != nil {
		if err := c.choices.RefreshAll(ctx); err != nil {
			return c.fail(ctx, KindPersistence, "refresh", err)
		}
	}
	if err := c.refreshLookups(ctx); err != nil {
		return c.fail(ctx, KindPersistence, "refresh", err)
	}
	return nil
}

func (c *Controller) refreshLookups(ctx context.Context) error {
	for _, l := range c.lookups {
		if err := l.RefreshChoices(ctx); err != nil {
			return err
		}
	}
	return nil
}

// refreshAfterWrite re-reads choice lists once a write has committed. The
// write stands even if this fails.
func (c *Controller) refreshAfterWrite(ctx context.Context) {
	if c.choices != nil {
		if err := c.choices.RefreshAll(ctx); err != nil {
			c.logger.Warn("refresh choice lists", zap.Error(err))
		}
	}
	if err := c.refreshLookups(ctx); err != nil {
		c.logger.Warn("refresh lookups", zap.Error(err))
	}
}

// guard asks what to do with unsaved changes before the record on display
// is replaced. It reports whether the operation may go ahead.
func (c *Controller) guard(ctx context.Context, op string) (bool, error) {
	if !c.IsDirty() {
		return true, nil
	}
	answer := AnswerNone
	if c.prompter != nil {
		answer = c.prompter.AskSaveChanges(ctx, c.name)
	}
	switch answer {
	case AnswerYes:
		if err := c.Save(ctx); err != nil {
			return false, err
		}
		return true, nil
	case AnswerNo:
		if err := c.show(ctx, c.record); err != nil {
			return false, c.fail(ctx, KindPersistence, op, err)
		}
		c.logger.Debug("changes discarded", zap.String("op", op))
		return true, nil
	}
	c.logger.Debug("operation cancelled", zap.String("op", op), zap.Stringer("answer", answer))
	return false, nil
}

func (c *Controller) load(ctx context.Context, op string, key any) error {
	rec, err := c.store.Get(ctx, c.entity, key)
	if err != nil {
		if store.IsNotFound(err) {
			return c.fail(ctx, KindNotFound, op, err)
		}
		return c.fail(ctx, KindPersistence, op, err)
	}
	if err := c.show(ctx, rec); err != nil {
		return c.fail(ctx, KindPersistence, op, err)
	}
	c.logger.Debug("record loaded", zap.String("op", op), zap.Any("key", key))
	return nil
}

// show makes rec the record on display and loads every element from it.
func (c *Controller) show(ctx context.Context, rec *store.Record) error {
	c.record = rec
	for _, el := range c.elements {
		if err := el.LoadFromRecord(ctx, rec); err != nil {
			return err
		}
	}
	c.lastDirty = c.IsDirty()
	c.emitState()
	return nil
}

func (c *Controller) blankRecord() *store.Record {
	rec := store.NewRecord(c.entity)
	if err := store.ApplyDefaults(c.entity, rec.Values); err != nil {
		c.logger.Warn("apply defaults", zap.Error(err))
	}
	for attr, v := range c.initial {
		rec.Set(attr, v)
	}
	return rec
}

// pushAdapters writes every dirty field into the record.
func (c *Controller) pushAdapters(ctx context.Context) error {
	for _, a := range c.adapters {
		if err := a.SaveToRecord(ctx, c.record); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) dirtyChanged() {
	if d := c.IsDirty(); d != c.lastDirty {
		c.lastDirty = d
		c.emitState()
	}
}

func (c *Controller) emitState() {
	s := c.State()
	for _, fn := range c.stateFns {
		fn(s)
	}
}

// fail classifies err, logs it and shows it to the user.
func (c *Controller) fail(ctx context.Context, kind ErrorKind, op string, err error) error {
	fe := &Error{Kind: kind, Op: op, Err: err}
	c.logger.Warn("form operation failed",
		zap.String("op", op),
		zap.Stringer("kind", kind),
		zap.Any("key", c.Key()),
		zap.Error(err),
	)
	if c.prompter != nil {
		c.prompter.ShowError(ctx, fe)
	}
	return fe
}

type memento struct {
	record *store.Record
	states []any
}

func (c *Controller) snapshot() memento {
	var rec *store.Record
	if c.record != nil {
		rec = c.record.Copy()
	}
	m := memento{record: rec, states: make([]any, len(c.elements))}
	for i, el := range c.elements {
		if s, ok := el.(snapshotter); ok {
			m.states[i] = s.snapshot()
		}
	}
	return m
}

func (c *Controller) restore(m memento) {
	c.record = m.record
	for i, el := range c.elements {
		if s, ok := el.(snapshotter); ok {
			s.restore(m.states[i])
		}
	}
	c.dirtyChanged()
}
