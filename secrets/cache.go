package secrets

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
)

// Handle proves a secret existed when Get was called. It carries only the name.
type Handle struct {
	name string
}

// Name returns the secret name the handle refers to
func (h Handle) Name() string { return h.name }

// Cache maps secret names to sealed values. It is thread-safe.
type Cache struct {
	m  map[string]Secret
	mu sync.RWMutex
}

// NewCache seals values into a new cache
func NewCache(values map[string]Value) *Cache {
	m := make(map[string]Secret, len(values))
	for name, v := range values {
		m[name] = Wrap(v)
	}
	return &Cache{m: m}
}

// Get checks that name exists and returns a handle for it.
// An unknown name returns a not_found error.
func (c *Cache) Get(name string) (Handle, error) {
	c.mu.RLock()
	_, ok := c.m[name]
	c.mu.RUnlock()
	if !ok {
		return Handle{}, errors.NotFound(errors.PhaseSecrets, "secret", name)
	}
	return Handle{name: name}, nil
}

// Reveal returns the value behind h. A secret that vanished after Get
// returns an invariant error.
func (c *Cache) Reveal(h Handle) (Value, error) {
	c.mu.RLock()
	s, ok := c.m[h.name]
	c.mu.RUnlock()
	if !ok {
		Logger().Error("secret not found to reveal", zap.String("name", h.name))
		return Value{}, errors.New(errors.PhaseSecrets, errors.KindInvariant).
			Value(h.name).
			Detail("secret not found to reveal, ensure the secret is declared and associated with this component at startup").
			Build()
	}
	return s.Expose(), nil
}

// Remove drops a secret, used when the owning component is torn down.
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	delete(c.m, name)
	c.mu.Unlock()
}

// Len returns the number of secrets held
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Names returns the secret names in sorted order
func (c *Cache) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.m))
	for name := range c.m {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}
