// Package pubsub defines the direct pub/sub backends a handler can hold and
// the pool that maps link names to live connections.
//
// Backends deliver at most once and make no ordering promise beyond what the
// underlying bus provides.
package pubsub

import (
	"context"
	"sort"
)

// Header is a case-sensitive multimap carried with a message
type Header map[string][]string

// Add appends a value for key
func (h Header) Add(key, value string) {
	h[key] = append(h[key], value)
}

// Set replaces the values for key
func (h Header) Set(key, value string) {
	h[key] = []string{value}
}

// Get returns the first value for key
func (h Header) Get(key string) string {
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Values returns every value for key
func (h Header) Values(key string) []string {
	return h[key]
}

// Del removes key
func (h Header) Del(key string) {
	delete(h, key)
}

// Keys returns the keys in sorted order
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. A nil header clones to nil.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Message is a message received from or sent to a backend
type Message struct {
	Header  Header
	Subject string
	Reply   string
	Data    []byte
}

// Subscription is an active subscription
type Subscription interface {
	Unsubscribe() error
}

// Conn is a live connection to a pub/sub backend
type Conn interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishWithReply(ctx context.Context, subject, reply string, data []byte) error
	PublishWithHeaders(ctx context.Context, subject string, hdr Header, data []byte) error
	Request(ctx context.Context, subject string, data []byte) (*Message, error)
	RequestWithHeaders(ctx context.Context, subject string, hdr Header, data []byte) (*Message, error)
	Subscribe(ctx context.Context, subject string, fn func(*Message)) (Subscription, error)
	Close() error
}
