package natsrpc

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/stream"
	"github.com/wippyai/wasmbus/transport"
)

// Client invokes functions exported under a session prefix
type Client struct {
	nc     *nats.Conn
	prefix string
}

// NewClient creates a client for prefix, typically "<lattice>.<destination>"
func NewClient(nc *nats.Conn, prefix string) *Client {
	return &Client{nc: nc, prefix: prefix}
}

// Dialer creates clients sharing one NATS connection
type Dialer struct {
	nc *nats.Conn
}

// NewDialer creates a transport.Dialer over nc
func NewDialer(nc *nats.Conn) *Dialer {
	return &Dialer{nc: nc}
}

// Dial implements transport.Dialer
func (d *Dialer) Dial(prefix string) (transport.Invoker, error) {
	if d.nc == nil || d.nc.IsClosed() {
		return nil, errors.Closed(errors.PhaseTransport, "nats connection is closed")
	}
	return NewClient(d.nc, prefix), nil
}

// Invoke implements transport.Invoker. ctx bounds the whole invocation:
// the handshake and every read from the returned source.
func (c *Client) Invoke(ctx context.Context, hdr transport.Header, instance, function string, params []byte, paths ...stream.Path) (stream.Sink, stream.Source, error) {
	inbox := nats.NewInbox()
	root := resultSubject(inbox)

	src := &source{ctx: ctx, subs: make(map[string]*nats.Subscription, len(paths))}
	sub, err := c.nc.SubscribeSync(root)
	if err != nil {
		return nil, nil, transportError(err, "subscribe to results")
	}
	src.sub = sub
	src.subs[root] = sub
	for _, p := range paths {
		subject := pathSubject(root, p)
		if _, ok := src.subs[subject]; ok {
			continue
		}
		s, err := c.nc.SubscribeSync(subject)
		if err != nil {
			_ = src.Close()
			return nil, nil, transportError(err, "subscribe to indexed results")
		}
		src.subs[subject] = s
	}
	src.base = root

	subject := Subject(c.prefix, instance, function)
	msg := nats.NewMsg(subject)
	msg.Header = toNATS(hdr)
	msg.Header.Set(HeaderResults, inbox)
	msg.Header.Set(HeaderInvocation, uuid.NewString())
	msg.Data = params

	Logger().Debug("invoking",
		zap.String("subject", subject),
		zap.Int("params", len(params)),
		zap.Int("paths", len(paths)))

	reply, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		_ = src.Close()
		if stderrors.Is(err, nats.ErrNoResponders) {
			return nil, nil, errors.New(errors.PhaseTransport, errors.KindClosed).
				Interface(instance).
				Cause(err).
				Detail("no responders on `%s`", subject).
				Build()
		}
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, nats.ErrTimeout) {
			return nil, nil, errors.Timeout(errors.PhaseTransport, "handshake on `"+subject+"`", context.DeadlineExceeded)
		}
		return nil, nil, transportError(err, "handshake on `"+subject+"`")
	}
	if msg := reply.Header.Get(HeaderError); msg != "" {
		_ = src.Close()
		return nil, nil, errors.New(errors.PhaseTransport, errors.KindTransport).
			Interface(instance).
			Detail("server rejected invocation: %s", msg).
			Build()
	}
	if reply.Reply == "" {
		_ = src.Close()
		return nil, nil, errors.InvalidInput(errors.PhaseTransport, "handshake did not name a parameter inbox")
	}

	return &sink{nc: c.nc, subject: reply.Reply}, src, nil
}

func transportError(err error, detail string) error {
	if stderrors.Is(err, nats.ErrConnectionClosed) || stderrors.Is(err, nats.ErrBadSubscription) {
		return errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, detail)
	}
	return errors.Wrap(errors.PhaseTransport, errors.KindTransport, err, detail)
}

// sink publishes parameter bytes to the server's inbox
type sink struct {
	nc      *nats.Conn
	subject string
	closed  bool
}

func (s *sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.Closed(errors.PhaseTransport, "write after close")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.nc.Publish(s.subject, p); err != nil {
		return 0, transportError(err, "publish parameters")
	}
	return len(p), nil
}

func (s *sink) Flush() error {
	if err := s.nc.Flush(); err != nil {
		return transportError(err, "flush")
	}
	return nil
}

// Close sends the end-of-stream marker. It is idempotent.
func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.nc.Publish(s.subject, nil); err != nil {
		return transportError(err, "publish end of stream")
	}
	return nil
}

func (s *sink) Index(path ...int) (stream.Sink, error) {
	for _, i := range path {
		if i == stream.Wildcard {
			return nil, errors.InvalidInput(errors.PhaseTransport, "cannot write to a wildcard path")
		}
	}
	return &sink{nc: s.nc, subject: pathSubject(s.subject, path)}, nil
}

// source reads results from pre-subscribed inbox subjects
type source struct {
	ctx  context.Context
	sub  *nats.Subscription
	subs map[string]*nats.Subscription
	base string
	buf  []byte
	eof  bool
}

func (s *source) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if s.sub == nil {
			return 0, errors.Closed(errors.PhaseTransport, "read after close")
		}
		if s.eof {
			return 0, io.EOF
		}
		m, err := s.sub.NextMsgWithContext(s.ctx)
		if err != nil {
			if stderrors.Is(err, context.DeadlineExceeded) {
				return 0, errors.Timeout(errors.PhaseTransport, "receive results", err)
			}
			return 0, transportError(err, "receive results")
		}
		if msg := m.Header.Get(HeaderError); msg != "" {
			s.eof = true
			return 0, errors.New(errors.PhaseTransport, errors.KindTransport).
				Detail("remote invocation failed: %s", msg).
				Build()
		}
		if len(m.Data) == 0 {
			s.eof = true
			return 0, io.EOF
		}
		s.buf = m.Data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close unsubscribes. Closing the root source releases every indexed subscription.
func (s *source) Close() error {
	if s.sub == nil {
		return nil
	}
	var err error
	if s.subs != nil {
		for subject, sub := range s.subs {
			err = multierr.Append(err, ignoreBadSub(sub.Unsubscribe()))
			delete(s.subs, subject)
		}
	} else {
		err = ignoreBadSub(s.sub.Unsubscribe())
	}
	s.sub = nil
	return err
}

func (s *source) Index(path ...int) (stream.Source, error) {
	if s.subs == nil {
		return nil, errors.Unsupported(errors.PhaseTransport, "nested index on an indexed source")
	}
	subject := pathSubject(s.base, path)
	sub, ok := s.subs[subject]
	if !ok {
		return nil, errors.New(errors.PhaseTransport, errors.KindNotFound).
			Value(path).
			Detail("path `%s` was not requested when invoking", subject).
			Build()
	}
	return &source{ctx: s.ctx, sub: sub, base: subject}, nil
}

func ignoreBadSub(err error) error {
	if stderrors.Is(err, nats.ErrBadSubscription) || stderrors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
