package link

import (
	"sort"
	"sync"
)

// Graph maps link names to the destination configured for each interface.
// It is shared by every handler in the process and is thread-safe.
type Graph struct {
	links map[string]map[string]string
	mu    sync.RWMutex
}

// NewGraph creates an empty link graph
func NewGraph() *Graph {
	return &Graph{links: make(map[string]map[string]string)}
}

// Put wires instance under link to dest
func (g *Graph) Put(link, instance, dest string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.links[link]
	if !ok {
		m = make(map[string]string)
		g.links[link] = m
	}
	m[Canonical(instance)] = dest
}

// Remove drops the wiring for instance under link. A link left with no
// interfaces is removed as well.
func (g *Graph) Remove(link, instance string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.links[link]
	if !ok {
		return
	}
	delete(m, Canonical(instance))
	if len(m) == 0 {
		delete(g.links, link)
	}
}

// Lookup returns the destination for instance under link.
// hasLink reports whether the link exists at all, which lets callers
// tell a missing link apart from a link without this interface.
func (g *Graph) Lookup(link, instance string) (dest string, hasLink, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, hasLink := g.links[link]
	if !hasLink {
		return "", false, false
	}
	dest, ok = m[Canonical(instance)]
	return dest, true, ok
}

// Has reports whether instance has a destination under link
func (g *Graph) Has(link, instance string) bool {
	_, _, ok := g.Lookup(link, instance)
	return ok
}

// Links returns the configured link names in sorted order
func (g *Graph) Links() []string {
	g.mu.RLock()
	names := make([]string, 0, len(g.links))
	for name := range g.links {
		names = append(names, name)
	}
	g.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of the graph
func (g *Graph) Snapshot() map[string]map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]map[string]string, len(g.links))
	for link, m := range g.links {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		out[link] = cp
	}
	return out
}

// Replace swaps the whole graph for links. Instance keys are canonicalized.
func (g *Graph) Replace(links map[string]map[string]string) {
	next := make(map[string]map[string]string, len(links))
	for link, m := range links {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[Canonical(k)] = v
		}
		next[link] = cp
	}
	g.mu.Lock()
	g.links = next
	g.mu.Unlock()
}
