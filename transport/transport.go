// Package transport defines the remote invocation contract used when a call's
// destination is not hosted in this process.
//
// A Dialer opens a session addressed at "<lattice>.<destination>". The
// session's Invoker sends the encoded parameters together with a Header and
// returns the remote outgoing and incoming streams. WithTimeout bounds the
// invocation with a hard deadline.
package transport

import (
	"context"
	stderrors "errors"
	"io"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/stream"
)

// Well-known header keys attached to every remote invocation
const (
	HeaderSourceID = "source-id"
	HeaderLinkName = "link-name"
)

// Header is a multimap of invocation metadata. Keys are stored lowercase.
// It implements propagation.TextMapCarrier.
type Header map[string][]string

// Get returns the first value for key
func (h Header) Get(key string) string {
	if v := h[strings.ToLower(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Set replaces the values for key
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = []string{value}
}

// Add appends a value for key
func (h Header) Add(key, value string) {
	key = strings.ToLower(key)
	h[key] = append(h[key], value)
}

// Values returns every value for key
func (h Header) Values(key string) []string {
	return h[strings.ToLower(key)]
}

// Keys returns the header keys in sorted order
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

var _ propagation.TextMapCarrier = Header(nil)

// InjectTrace writes the W3C trace context carried by ctx into h.
func InjectTrace(ctx context.Context, h Header) {
	propagation.TraceContext{}.Inject(ctx, h)
}

// Session returns the session prefix for a destination in a lattice
func Session(lattice, destination string) string {
	return lattice + "." + destination
}

// Invoker performs a single remote invocation.
// Callers close the returned sink once every parameter byte is written.
type Invoker interface {
	Invoke(ctx context.Context, hdr Header, instance, function string, params []byte, paths ...stream.Path) (stream.Sink, stream.Source, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, hdr Header, instance, function string, params []byte, paths ...stream.Path) (stream.Sink, stream.Source, error)

func (f InvokerFunc) Invoke(ctx context.Context, hdr Header, instance, function string, params []byte, paths ...stream.Path) (stream.Sink, stream.Source, error) {
	return f(ctx, hdr, instance, function, params, paths...)
}

// Dialer opens sessions for a prefix built with Session
type Dialer interface {
	Dial(prefix string) (Invoker, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(prefix string) (Invoker, error)

func (f DialerFunc) Dial(prefix string) (Invoker, error) { return f(prefix) }

type timeoutInvoker struct {
	inner Invoker
	d     time.Duration
}

// WithTimeout bounds every Invoke on inv by d. A non-positive d disables it.
// The deadline covers the whole invocation: establishing it and reading the
// returned source. Closing the source releases the deadline.
func WithTimeout(inv Invoker, d time.Duration) Invoker {
	if d <= 0 {
		return inv
	}
	return &timeoutInvoker{inner: inv, d: d}
}

func (t *timeoutInvoker) Invoke(ctx context.Context, hdr Header, instance, function string, params []byte, paths ...stream.Path) (stream.Sink, stream.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)

	type result struct {
		sink stream.Sink
		src  stream.Source
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sink, src, err := t.inner.Invoke(ctx, hdr, instance, function, params, paths...)
		done <- result{sink, src, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			if stderrors.Is(r.err, context.DeadlineExceeded) {
				return nil, nil, timeoutError(instance, function, t.d, r.err)
			}
			return nil, nil, r.err
		}
		src := &deadlineSource{Source: r.src, ctx: ctx, cancel: cancel, instance: instance, function: function, d: t.d}
		return r.sink, src, nil
	case <-ctx.Done():
		cancel()
		// Release whatever the inner call produces after we gave up on it.
		go func() {
			r := <-done
			if r.sink != nil {
				_ = r.sink.Close()
			}
			if r.src != nil {
				_ = r.src.Close()
			}
		}()
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, timeoutError(instance, function, t.d, ctx.Err())
		}
		return nil, nil, ctx.Err()
	}
}

// deadlineSource fails reads once the invocation deadline has passed, even
// when the wrapped source does not watch the context itself.
type deadlineSource struct {
	stream.Source
	ctx      context.Context
	cancel   context.CancelFunc
	instance string
	function string
	d        time.Duration
}

func (s *deadlineSource) Read(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, s.expired(err)
	}
	n, err := s.Source.Read(p)
	if err != nil && err != io.EOF {
		if cerr := s.ctx.Err(); cerr != nil {
			return n, s.expired(cerr)
		}
	}
	return n, err
}

func (s *deadlineSource) expired(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return timeoutError(s.instance, s.function, s.d, err)
	}
	return errors.Wrap(errors.PhaseTransport, errors.KindTransport, err, "invocation cancelled")
}

func (s *deadlineSource) Index(path ...int) (stream.Source, error) {
	src, err := s.Source.Index(path...)
	if err != nil {
		return nil, err
	}
	return &deadlineSource{Source: src, ctx: s.ctx, cancel: func() {}, instance: s.instance, function: s.function, d: s.d}, nil
}

func (s *deadlineSource) Close() error {
	s.cancel()
	return s.Source.Close()
}

func timeoutError(instance, function string, d time.Duration, cause error) error {
	return errors.New(errors.PhaseTransport, errors.KindTimeout).
		Interface(instance).
		Cause(cause).
		Detail("invocation of `%s` in `%s` timed out after %s", function, instance, d).
		Build()
}
