package stream

import (
	"io"
	"sync"

	"github.com/wippyai/wasmbus/errors"
)

type pipe struct {
	ch        chan []byte
	closed    chan struct{}
	dropped   chan struct{}
	err       error
	mu        sync.RWMutex // held shared by in-flight sends, exclusively by close
	closeOnce sync.Once
	dropOnce  sync.Once
}

// Pipe creates a connected single-slot writer and reader
func Pipe() (*Writer, *Reader) {
	p := &pipe{
		ch:      make(chan []byte, 1),
		closed:  make(chan struct{}),
		dropped: make(chan struct{}),
	}
	return &Writer{p: p}, &Reader{p: p}
}

// Writer is the sending end of a Pipe
type Writer struct {
	p *pipe
}

func (w *Writer) check() error {
	select {
	case <-w.p.closed:
		return errors.Closed(errors.PhaseStream, "write after close")
	case <-w.p.dropped:
		return errors.Closed(errors.PhaseStream, "reader dropped")
	default:
		return nil
	}
}

// Write sends p as one chunk, blocking while the slot is occupied.
// p is copied before it is queued.
func (w *Writer) Write(p []byte) (int, error) {
	w.p.mu.RLock()
	defer w.p.mu.RUnlock()
	if err := w.check(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case w.p.ch <- buf:
		return len(p), nil
	case <-w.p.dropped:
		return 0, errors.Closed(errors.PhaseStream, "reader dropped")
	}
}

// TryWrite sends p without blocking. It fails with a full error while the
// previous chunk is unread.
func (w *Writer) TryWrite(p []byte) (int, error) {
	w.p.mu.RLock()
	defer w.p.mu.RUnlock()
	if err := w.check(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case w.p.ch <- buf:
		return len(p), nil
	default:
		return 0, errors.New(errors.PhaseStream, errors.KindFull).
			Detail("pipe holds an unread chunk").
			Build()
	}
}

// Flush is a no-op; chunks are visible to the reader as soon as Write returns.
func (w *Writer) Flush() error {
	return w.check()
}

// Close signals end of input. It is idempotent.
func (w *Writer) Close() error {
	return w.CloseWithError(nil)
}

// CloseWithError signals end of input. Once every queued chunk is consumed
// the reader returns err instead of io.EOF. Only the first close counts.
// It waits for writes already in progress to queue their chunk.
func (w *Writer) CloseWithError(err error) error {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	w.p.closeOnce.Do(func() {
		w.p.err = err
		close(w.p.closed)
	})
	return nil
}

// Index is not supported on local pipes
func (w *Writer) Index(path ...int) (*Writer, error) {
	return nil, errUnsupportedIndex(path)
}

// Reader is the receiving end of a Pipe
type Reader struct {
	p   *pipe
	buf []byte
}

// Read fills b from the pending chunk, blocking until one arrives.
// It returns io.EOF, or the error given to CloseWithError, once the writer
// closed and every chunk was consumed.
func (r *Reader) Read(b []byte) (int, error) {
	if len(r.buf) == 0 {
		select {
		case <-r.p.dropped:
			return 0, errors.Closed(errors.PhaseStream, "read after close")
		default:
		}

		select {
		case chunk := <-r.p.ch:
			r.buf = chunk
		case <-r.p.closed:
			// The writer's last send completed before it closed.
			select {
			case chunk := <-r.p.ch:
				r.buf = chunk
			default:
				if r.p.err != nil {
					return 0, r.p.err
				}
				return 0, io.EOF
			}
		}
	}

	n := copy(b, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close drops the reader. Pending and future writes fail with a closed error.
func (r *Reader) Close() error {
	r.p.dropOnce.Do(func() { close(r.p.dropped) })
	r.buf = nil
	return nil
}

// Index is not supported on local pipes
func (r *Reader) Index(path ...int) (*Reader, error) {
	return nil, errUnsupportedIndex(path)
}

func errUnsupportedIndex(path []int) error {
	return errors.New(errors.PhaseStream, errors.KindUnsupported).
		Value(path).
		Detail("index-by-path is not supported on local streams").
		Build()
}
