package host

import (
	"context"
	"io"
	"sort"
	"sync"
)

// Instance is one instantiation of a component
type Instance interface {
	// Call runs function of the exported instance, reading encoded
	// parameters from r and writing encoded results to w.
	Call(ctx context.Context, instance, function string, r io.Reader, w io.Writer) error
	Close(ctx context.Context) error
}

// Component is a component hosted in this process
type Component interface {
	// Handler returns the component's own handler. Local calls instantiate
	// the component with a copy of it.
	Handler() *Handler
	Instantiate(ctx context.Context, h *Handler) (Instance, error)
}

// Registry maps destination ids to components running in this process.
// Thread-safe.
type Registry struct {
	components map[string]Component
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Get returns the component registered under id.
func (r *Registry) Get(id string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// Put registers c under id and returns the component it replaced, if any.
func (r *Registry) Put(id string, c Component) Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.components[id]
	r.components[id] = c
	return prev
}

// Remove unregisters id.
func (r *Registry) Remove(id string) Component {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.components[id]
	delete(r.components, id)
	return prev
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.components))
	for id := range r.components {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
