// Package uow provides the per-session identity map that repositories fill while
// loading entities, and the Scope interface used to reset it explicitly.
package uow

import (
	"fmt"
	"sync"
)

// Scope is a resettable unit-of-work. Long-running loops (bulk import) clear it
// after each step so tracked state does not grow with the input size.
type Scope interface {
	Clear()
}

// Scopes fans Clear out to several scopes.
type Scopes []Scope

// Clear clears every scope in order.
func (s Scopes) Clear() {
	for _, sc := range s {
		if sc != nil {
			sc.Clear()
		}
	}
}

// IdentityMap tracks loaded entities by primary key so repeated lookups in one
// session return the same instance without another store round-trip.
type IdentityMap[T any] struct {
	mu      sync.Mutex
	entries map[string]T
	clears  int
}

// NewIdentityMap creates an empty identity map.
func NewIdentityMap[T any]() *IdentityMap[T] {
	return &IdentityMap[T]{entries: make(map[string]T)}
}

// Get returns the tracked entity for id.
func (m *IdentityMap[T]) Get(id any) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key(id)]
	return e, ok
}

// Put tracks entity under id.
func (m *IdentityMap[T]) Put(id any, entity T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key(id)] = entity
}

// Forget stops tracking id.
func (m *IdentityMap[T]) Forget(id any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key(id))
}

// Len returns the number of tracked entities.
func (m *IdentityMap[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear drops every tracked entity.
func (m *IdentityMap[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]T)
	m.clears++
}

// Clears returns how many times Clear ran.
func (m *IdentityMap[T]) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

func key(id any) string {
	return fmt.Sprint(id)
}
