package form

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
)

// ChoiceSource builds one named choice list from the store.
type ChoiceSource func(ctx context.Context, s Store) ([]Choice, error)

// ChoiceCache holds the shared choice lists of an application. Lists are
// only rebuilt by Refresh or RefreshAll; forms refresh the cache after a
// successful save or delete.
type ChoiceCache struct {
	mu      sync.RWMutex
	store   Store
	order   []string
	sources map[string]ChoiceSource
	lists   map[string][]Choice
}

func NewChoiceCache(s Store) *ChoiceCache {
	return &ChoiceCache{
		store:   s,
		sources: make(map[string]ChoiceSource),
		lists:   make(map[string][]Choice),
	}
}

// Register adds a named list. It is empty until refreshed.
func (c *ChoiceCache) Register(name string, src ChoiceSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[name]; !ok {
		c.order = append(c.order, name)
	}
	c.sources[name] = src
}

func (c *ChoiceCache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sources[name]
	return ok
}

// Names returns the registered list names in registration order.
func (c *ChoiceCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Get returns a copy of the named list.
func (c *ChoiceCache) Get(name string) []Choice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.lists[name])
}

// Refresh rebuilds one list. On error the previous contents are kept.
func (c *ChoiceCache) Refresh(ctx context.Context, name string) error {
	c.mu.RLock()
	src, ok := c.sources[name]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown choice list %s", name)
	}
	list, err := src(ctx, c.store)
	if err != nil {
		return fmt.Errorf("refresh choice list %s: %w", name, err)
	}
	c.mu.Lock()
	c.lists[name] = list
	c.mu.Unlock()
	return nil
}

func (c *ChoiceCache) RefreshAll(ctx context.Context) error {
	for _, name := range c.Names() {
		if err := c.Refresh(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// ChoiceOption adjusts a FieldChoices source.
type ChoiceOption func(*fieldChoices)

type fieldChoices struct {
	none string
}

// WithNone prepends a "no choice" entry with a nil value.
func WithNone(label string) ChoiceOption {
	return func(fc *fieldChoices) { fc.none = label }
}

// FieldChoices lists every record of entity as a choice whose value is
// valueField and whose label is labelField, ordered by label.
func FieldChoices(entity *metadata.Entity, valueField, labelField string, opts ...ChoiceOption) ChoiceSource {
	var fc fieldChoices
	for _, opt := range opts {
		opt(&fc)
	}
	return func(ctx context.Context, s Store) ([]Choice, error) {
		recs, err := s.All(ctx, entity)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(recs, func(i, j int) bool {
			return store.Compare(recs[i].Values[labelField], recs[j].Values[labelField]) < 0
		})
		out := make([]Choice, 0, len(recs)+1)
		if fc.none != "" {
			out = append(out, Choice{Label: fc.none})
		}
		for _, rec := range recs {
			out = append(out, Choice{Value: rec.Values[valueField], Label: labelText(rec.Values[labelField])})
		}
		return out, nil
	}
}

func labelText(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
