package stream

import (
	"io"

	"github.com/wippyai/wasmbus/errors"
)

// Wildcard matches every element at one level of a Path
const Wildcard = -1

// Path addresses a nested sub-stream of a value, one index per level.
type Path []int

// Sink is a remote outgoing stream
type Sink interface {
	io.WriteCloser
	Flush() error
	Index(path ...int) (Sink, error)
}

// Source is a remote incoming stream
type Source interface {
	io.ReadCloser
	Index(path ...int) (Source, error)
}

// Kind tells which variant a stream wraps
type Kind uint8

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// Outgoing is the caller's write side of an invocation
type Outgoing struct {
	local  *Writer
	remote Sink
}

// LocalOutgoing wraps a pipe writer
func LocalOutgoing(w *Writer) *Outgoing { return &Outgoing{local: w} }

// RemoteOutgoing wraps a transport sink
func RemoteOutgoing(s Sink) *Outgoing { return &Outgoing{remote: s} }

// Kind returns the wrapped variant
func (o *Outgoing) Kind() Kind {
	if o.remote != nil {
		return KindRemote
	}
	return KindLocal
}

func (o *Outgoing) Write(p []byte) (int, error) {
	if o.remote != nil {
		return o.remote.Write(p)
	}
	return o.local.Write(p)
}

// Flush pushes buffered bytes to the peer
func (o *Outgoing) Flush() error {
	if o.remote != nil {
		return o.remote.Flush()
	}
	return o.local.Flush()
}

// Close shuts down the write side
func (o *Outgoing) Close() error {
	if o.remote != nil {
		return o.remote.Close()
	}
	return o.local.Close()
}

// Index returns the sub-stream at path. Local streams fail fast.
func (o *Outgoing) Index(path ...int) (*Outgoing, error) {
	if o.remote == nil {
		_, err := o.local.Index(path...)
		return nil, err
	}
	s, err := o.remote.Index(path...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStream, errors.KindTransport, err, "index outgoing stream")
	}
	return &Outgoing{remote: s}, nil
}

// Incoming is the caller's read side of an invocation
type Incoming struct {
	local  *Reader
	remote Source
}

// LocalIncoming wraps a pipe reader
func LocalIncoming(r *Reader) *Incoming { return &Incoming{local: r} }

// RemoteIncoming wraps a transport source
func RemoteIncoming(s Source) *Incoming { return &Incoming{remote: s} }

// Kind returns the wrapped variant
func (i *Incoming) Kind() Kind {
	if i.remote != nil {
		return KindRemote
	}
	return KindLocal
}

func (i *Incoming) Read(p []byte) (int, error) {
	if i.remote != nil {
		return i.remote.Read(p)
	}
	return i.local.Read(p)
}

// Close releases the read side
func (i *Incoming) Close() error {
	if i.remote != nil {
		return i.remote.Close()
	}
	return i.local.Close()
}

// Index returns the sub-stream at path. Local streams fail fast.
func (i *Incoming) Index(path ...int) (*Incoming, error) {
	if i.remote == nil {
		_, err := i.local.Index(path...)
		return nil, err
	}
	s, err := i.remote.Index(path...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStream, errors.KindTransport, err, "index incoming stream")
	}
	return &Incoming{remote: s}, nil
}
