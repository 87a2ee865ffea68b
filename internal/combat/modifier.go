package combat

import (
	"sort"

	"github.com/skillcast/server/internal/world"
)

// QueryType scopes modifier registration; an actor's crit modifiers never see
// heal queries and vice versa.
type QueryType string

const (
	QueryAttack QueryType = "attack"
	QueryHeal   QueryType = "heal"
)

// Context is handed to every modifier in the pipeline. Stats is a value
// snapshot taken at resolution start; TargetID may be zero for self-targets.
type Context struct {
	ActorID   int32
	TargetID  int32
	SkillID   int32
	Tags      []string
	ComboStep int
	IsCrit    bool
	Stats     world.Stats
}

// HasTag reports whether the attack carries the given tag.
func (c *Context) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Modifier rewrites an in-progress composition. Apply may split packets,
// append new ones, or scale amounts, but must be deterministic: identical
// context and composition input always produce identical output.
type Modifier interface {
	ID() string
	Priority() int
	Matches(ctx *Context) bool
	Apply(ctx *Context, result *Composition)
}

// Registry owns per-actor modifier lists keyed by query type, kept sorted by
// ascending priority (ties broken by ID for a stable application order).
// There is no global mutable list; ClearActor drops everything an actor
// registered when the actor is removed.
type Registry struct {
	byActor map[int32]map[QueryType][]Modifier
}

func NewRegistry() *Registry {
	return &Registry{
		byActor: make(map[int32]map[QueryType][]Modifier, 64),
	}
}

// Register adds a modifier for the actor and query type.
func (r *Registry) Register(actorID int32, q QueryType, m Modifier) {
	byQuery, ok := r.byActor[actorID]
	if !ok {
		byQuery = make(map[QueryType][]Modifier, 2)
		r.byActor[actorID] = byQuery
	}
	list := append(byQuery[q], m)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority() != list[j].Priority() {
			return list[i].Priority() < list[j].Priority()
		}
		return list[i].ID() < list[j].ID()
	})
	byQuery[q] = list
}

// Unregister removes a modifier by ID. Returns true when something was removed.
func (r *Registry) Unregister(actorID int32, q QueryType, id string) bool {
	byQuery, ok := r.byActor[actorID]
	if !ok {
		return false
	}
	list := byQuery[q]
	for i, m := range list {
		if m.ID() == id {
			byQuery[q] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// ClearActor removes every modifier the actor registered. Called on actor
// removal and death.
func (r *Registry) ClearActor(actorID int32) {
	delete(r.byActor, actorID)
}

// modifiers returns the ordered list for the actor and query type.
func (r *Registry) modifiers(actorID int32, q QueryType) []Modifier {
	if byQuery, ok := r.byActor[actorID]; ok {
		return byQuery[q]
	}
	return nil
}
