package store

import (
	"fmt"
	"sort"
	"sync"
)

// DeletionBehavior decides what happens to a related entity when an entity is deleted.
type DeletionBehavior uint8

const (
	// BehaviorCascade deletes the related entity too.
	BehaviorCascade DeletionBehavior = iota

	// BehaviorError refuses the deletion while the related entity exists.
	BehaviorError

	// BehaviorBreakLink deletes only the entity, leaving the related one in place.
	BehaviorBreakLink
)

// String implements fmt.Stringer.
func (b DeletionBehavior) String() string {
	switch b {
	case BehaviorCascade:
		return "cascade"
	case BehaviorError:
		return "error"
	case BehaviorBreakLink:
		return "break-link"
	default:
		return fmt.Sprintf("DeletionBehavior(%d)", uint8(b))
	}
}

// Edge is one declared relation from a store to another store.
type Edge struct {
	// Store is the related store name.
	Store string

	// OnDelete applies to the related entity when the declaring entity is deleted.
	OnDelete DeletionBehavior
}

// Declaration holds the static relations of one entity store.
type Declaration struct {
	// Store is the declaring store name.
	Store string

	// Siblings are stores holding entities under the same key.
	Siblings []Edge

	// Children are stores whose keys are prefixed by this store's keys.
	Children []Edge
}

// Registry maps store names to their relation declarations.
// Deleting from a store that is not registered fails with ErrUnregisteredEntity.
type Registry struct {
	mu           sync.RWMutex
	declarations map[string]Declaration
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		declarations: make(map[string]Declaration),
	}
}

// Register adds a declaration to the registry, replacing any previous
// declaration for the same store.
// This should be called during startup, before any deletion.
func (r *Registry) Register(decl Declaration) {
	decl.Siblings = append([]Edge(nil), decl.Siblings...)
	decl.Children = append([]Edge(nil), decl.Children...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.declarations[decl.Store] = decl
}

// Lookup returns the declaration registered for store.
func (r *Registry) Lookup(store string) (Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decl, ok := r.declarations[store]
	return decl, ok
}

// IsRegistered returns true if store has been registered.
func (r *Registry) IsRegistered(store string) bool {
	_, ok := r.Lookup(store)
	return ok
}

// SiblingsOf returns the sibling edges declared by store.
func (r *Registry) SiblingsOf(store string) []Edge {
	decl, _ := r.Lookup(store)
	return decl.Siblings
}

// ChildrenOf returns the child edges declared by store.
func (r *Registry) ChildrenOf(store string) []Edge {
	decl, _ := r.Lookup(store)
	return decl.Children
}

// Stores returns all registered store names, sorted.
func (r *Registry) Stores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.declarations))
	for name := range r.declarations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
