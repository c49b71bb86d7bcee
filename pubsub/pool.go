package pubsub

import (
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// Pool maps link names to live connections. It is shared by every handler
// copied from the same root and is thread-safe.
type Pool struct {
	conns map[string]Conn
	mu    sync.RWMutex
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{conns: make(map[string]Conn)}
}

// Get returns the connection held for link
func (p *Pool) Get(link string) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[link]
	return c, ok
}

// Put stores c under link and returns the connection it replaced, if any.
// The caller owns the replaced connection.
func (p *Pool) Put(link string, c Conn) Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.conns[link]
	p.conns[link] = c
	return prev
}

// Remove drops link from the pool and returns its connection
func (p *Pool) Remove(link string) Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.conns[link]
	delete(p.conns, link)
	return c
}

// Names returns the link names held, sorted
func (p *Pool) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.conns))
	for name := range p.conns {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Close closes and removes every connection
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]Conn)
	p.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	return err
}
