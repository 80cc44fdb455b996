package metadata

import (
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	mu                sync.RWMutex
	entities          map[string]*Entity
	order             []string               // registration order, used for migrations
	relationsBySource map[string][]*Relation // keyed by source entity name
	relationsByName   map[string]*Relation   // keyed by relation name
}

func NewRegistry() *Registry {
	return &Registry{
		entities:          make(map[string]*Entity),
		relationsBySource: make(map[string][]*Relation),
		relationsByName:   make(map[string]*Relation),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities in registration order.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// GetRelation returns a relation by name, or nil.
func (r *Registry) GetRelation(name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsByName[name]
}

// GetRelationsForSource returns all relations where source matches the given entity.
func (r *Registry) GetRelationsForSource(entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relationsBySource[entityName]
}

// GetRelationsForTarget returns relations whose target is the given entity.
func (r *Registry) GetRelationsForTarget(entityName string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Relation
	for _, rel := range r.relationsByName {
		if rel.Target == entityName {
			out = append(out, rel)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllRelations returns all registered relations sorted by name.
func (r *Registry) AllRelations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relations := make([]*Relation, 0, len(r.relationsByName))
	for _, rel := range r.relationsByName {
		relations = append(relations, rel)
	}
	sort.Slice(relations, func(i, j int) bool { return relations[i].Name < relations[j].Name })
	return relations
}

// Load replaces all entities and relations in the registry. Every entity
// is validated and every relation must reference registered entities.
func (r *Registry) Load(entities []*Entity, relations []*Relation) error {
	byName := make(map[string]*Entity, len(entities))
	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("duplicate entity %s", e.Name)
		}
		byName[e.Name] = e
		order = append(order, e.Name)
	}

	bySource := make(map[string][]*Relation)
	byRel := make(map[string]*Relation, len(relations))
	for _, rel := range relations {
		src, tgt := byName[rel.Source], byName[rel.Target]
		if src == nil || tgt == nil {
			return fmt.Errorf("relation %s: unknown entity %s -> %s", rel.Name, rel.Source, rel.Target)
		}
		if !tgt.HasField(rel.TargetKey) {
			return fmt.Errorf("relation %s: %s has no field %s", rel.Name, rel.Target, rel.TargetKey)
		}
		byRel[rel.Name] = rel
		bySource[rel.Source] = append(bySource[rel.Source], rel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = byName
	r.order = order
	r.relationsBySource = bySource
	r.relationsByName = byRel
	return nil
}
