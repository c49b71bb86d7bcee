// Package config gives components read access to their runtime configuration.
//
// A Bundle is the shared key/value set delivered by the host and may be
// swapped wholesale at any time. A Store is a handler's slot pointing at the
// current bundle.
package config

import (
	"sort"
	"sync"
)

// Bundle is a thread-safe, swappable key/value set
type Bundle struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewBundle creates a bundle holding a copy of values
func NewBundle(values map[string]string) *Bundle {
	return &Bundle{values: clone(values)}
}

// Get returns the value for key
func (b *Bundle) Get(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// All returns a copy of every key/value pair as of the call
func (b *Bundle) All() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.values)
}

// Keys returns the configured keys in sorted order
func (b *Bundle) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Update replaces the contents of the bundle
func (b *Bundle) Update(values map[string]string) {
	next := clone(values)
	b.mu.Lock()
	b.values = next
	b.mu.Unlock()
}

// Store is the per-handler view of the current bundle.
// Handlers copied for a new instance share the same Store.
type Store struct {
	bundle *Bundle
	mu     sync.RWMutex
}

// NewStore creates a store pointing at b. A nil bundle reads as empty.
func NewStore(b *Bundle) *Store {
	if b == nil {
		b = NewBundle(nil)
	}
	return &Store{bundle: b}
}

// Bundle returns the current bundle
func (s *Store) Bundle() *Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

// Swap points the store at a different bundle and returns the previous one
func (s *Store) Swap(b *Bundle) *Bundle {
	if b == nil {
		b = NewBundle(nil)
	}
	s.mu.Lock()
	prev := s.bundle
	s.bundle = b
	s.mu.Unlock()
	return prev
}

// Get reads key from the current bundle
func (s *Store) Get(key string) (string, bool) {
	return s.Bundle().Get(key)
}

// GetAll reads every pair from the current bundle
func (s *Store) GetAll() map[string]string {
	return s.Bundle().All()
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
