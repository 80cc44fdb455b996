package form

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
	"pickdesk/internal/store/storetest"
)

// scriptedPrompter replays canned answers. An exhausted script answers
// AnswerNone.
type scriptedPrompter struct {
	save     []Answer
	confirm  []Answer
	asked    int
	confirms int
	errs     []error
}

func (p *scriptedPrompter) AskSaveChanges(context.Context, string) Answer {
	p.asked++
	if len(p.save) == 0 {
		return AnswerNone
	}
	a := p.save[0]
	p.save = p.save[1:]
	return a
}

func (p *scriptedPrompter) AskConfirmDelete(context.Context, string, any) Answer {
	p.confirms++
	if len(p.confirm) == 0 {
		return AnswerNone
	}
	a := p.confirm[0]
	p.confirm = p.confirm[1:]
	return a
}

func (p *scriptedPrompter) ShowError(_ context.Context, err error) {
	p.errs = append(p.errs, err)
}

var errInjected = errors.New("injected failure")

// recordingStore logs every write made inside a transaction and can be
// told to fail upserts of one entity.
type recordingStore struct {
	*store.MemoryStore
	ops        []string
	failUpsert string
}

func (r *recordingStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return r.MemoryStore.InTx(ctx, func(tx store.Tx) error {
		return fn(recordingTx{Tx: tx, r: r})
	})
}

type recordingTx struct {
	store.Tx
	r *recordingStore
}

func (t recordingTx) Upsert(ctx context.Context, rec *store.Record) (*store.Record, error) {
	if rec.Entity.Name == t.r.failUpsert {
		return nil, errInjected
	}
	out, err := t.Tx.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	op := fmt.Sprintf("upsert %s %v", out.Entity.Name, out.Key())
	if fk, ok := out.Values["Part_id"]; ok {
		op += fmt.Sprintf(" Part_id=%v", fk)
	}
	t.r.ops = append(t.r.ops, op)
	return out, nil
}

func (t recordingTx) Delete(ctx context.Context, entity *metadata.Entity, key any) error {
	if err := t.Tx.Delete(ctx, entity, key); err != nil {
		return err
	}
	t.r.ops = append(t.r.ops, fmt.Sprintf("delete %s %v", entity.Name, key))
	return nil
}

type fixture struct {
	reg   *metadata.Registry
	part  *metadata.Entity
	box   *metadata.Entity
	store *recordingStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := storetest.Registry(t)
	return &fixture{
		reg:   reg,
		part:  reg.GetEntity("Part"),
		box:   reg.GetEntity("Box"),
		store: &recordingStore{MemoryStore: store.NewMemoryStore(reg)},
	}
}

func (f *fixture) put(t *testing.T, entity *metadata.Entity, values map[string]any) *store.Record {
	t.Helper()
	rec := store.NewRecord(entity)
	for k, v := range values {
		rec.Set(k, v)
	}
	out, err := f.store.MemoryStore.Upsert(context.Background(), rec)
	require.NoError(t, err)
	return out
}

// seedParts stores parts 1, 3 and 7.
func (f *fixture) seedParts(t *testing.T) {
	t.Helper()
	for _, id := range []int{1, 3, 7} {
		f.put(t, f.part, map[string]any{"id": id, "GPN": fmt.Sprintf("P%d", id), "Description": "bolt"})
	}
}

func (f *fixture) get(t *testing.T, entity *metadata.Entity, key any) *store.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), entity, key)
	require.NoError(t, err)
	return rec
}

func boxFields() []FieldDef {
	return []FieldDef{
		{Name: "id", Kind: TextField{}, ReadOnly: true},
		{Name: "boxqty", Label: "Box qty", Kind: TextField{}, Initial: 1},
	}
}

func partFields() []FieldDef {
	return []FieldDef{
		{Name: "id", Kind: TextField{}, ReadOnly: true, Position: Position{Row: 0, Col: 0}},
		{Name: "GPN", Kind: TextField{}, Transform: Upper, Position: Position{Row: 0, Col: 1}},
		{Name: "@GPN", Label: "lookup GPN", Kind: LookupField{}, Position: Position{Row: 0, Col: 2}},
		{Name: "Description", Kind: TextField{Multiline: true}, Position: Position{Row: 1, ColSpan: 3}},
		{Name: "active", Kind: CheckboxField{YesNo: &YesNo{Yes: "Active", No: "Retired"}}, Position: Position{Row: 2, Page: "details"}},
		{Name: "received", Kind: DateField{}, Position: Position{Row: 2, Col: 1, Page: "details"}},
		{Name: "weight", Kind: TextField{}, Initial: 0, Position: Position{Row: 3, Page: "stock"}},
		{Name: "boxes", Kind: SubformField{Relation: "boxes", Fields: boxFields()}, Position: Position{Row: 4, Page: "stock"}},
	}
}

func (f *fixture) open(t *testing.T, p Prompter) *Controller {
	t.Helper()
	c, err := New(context.Background(), Options{
		Name:     "Parts",
		Entity:   f.part,
		Registry: f.reg,
		Fields:   partFields(),
		Store:    f.store,
		Prompter: p,
	})
	require.NoError(t, err)
	return c
}
