package link

import "sync"

// Targets maps canonical instance names to the link name selected for them.
// Entries for DefaultName are never stored.
//
// Targets is thread-safe.
type Targets struct {
	m  map[string]string
	mu sync.RWMutex
}

// NewTargets creates an empty target table
func NewTargets() *Targets {
	return &Targets{m: make(map[string]string)}
}

// Get returns the active link name for instance, DefaultName when unset.
func (t *Targets) Get(instance string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.m[Canonical(instance)]; ok {
		return name
	}
	return DefaultName
}

// Select makes name the active link for every given interface.
// Selecting DefaultName removes the override instead of storing it.
func (t *Targets) Select(name string, ifaces ...Interface) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, iface := range ifaces {
		if name == DefaultName {
			delete(t.m, iface.Instance())
		} else {
			t.m[iface.Instance()] = name
		}
	}
}

// Len returns the number of explicit selections
func (t *Targets) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Snapshot returns a copy of the explicit selections
func (t *Targets) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}
