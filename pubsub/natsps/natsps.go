// Package natsps is the NATS pub/sub backend.
//
// Headers map onto native NATS headers and requests use NATS request/reply.
package natsps

import (
	"context"
	stderrors "errors"

	"github.com/nats-io/nats.go"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/pubsub"
)

// Conn adapts a NATS connection to pubsub.Conn
type Conn struct {
	nc    *nats.Conn
	owned bool
}

var _ pubsub.Conn = (*Conn)(nil)

// Connect dials url and owns the resulting connection
func Connect(url string, opts ...nats.Option) (*Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, "connect to "+url)
	}
	return &Conn{nc: nc, owned: true}, nil
}

// Wrap adapts an existing connection. Close leaves nc open.
func Wrap(nc *nats.Conn) *Conn {
	return &Conn{nc: nc}
}

// NATS returns the underlying connection
func (c *Conn) NATS() *nats.Conn {
	return c.nc
}

func (c *Conn) Publish(_ context.Context, subject string, data []byte) error {
	return wrap(c.nc.Publish(subject, data), "publish")
}

func (c *Conn) PublishWithReply(_ context.Context, subject, reply string, data []byte) error {
	return wrap(c.nc.PublishRequest(subject, reply, data), "publish with reply")
}

func (c *Conn) PublishWithHeaders(_ context.Context, subject string, hdr pubsub.Header, data []byte) error {
	msg := nats.NewMsg(subject)
	copyHeader(msg.Header, hdr)
	msg.Data = data
	return wrap(c.nc.PublishMsg(msg), "publish with headers")
}

func (c *Conn) Request(ctx context.Context, subject string, data []byte) (*pubsub.Message, error) {
	m, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, wrap(err, "request")
	}
	return fromNATS(m), nil
}

func (c *Conn) RequestWithHeaders(ctx context.Context, subject string, hdr pubsub.Header, data []byte) (*pubsub.Message, error) {
	msg := nats.NewMsg(subject)
	copyHeader(msg.Header, hdr)
	msg.Data = data
	m, err := c.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, wrap(err, "request with headers")
	}
	return fromNATS(m), nil
}

func (c *Conn) Subscribe(_ context.Context, subject string, fn func(*pubsub.Message)) (pubsub.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		fn(fromNATS(m))
	})
	if err != nil {
		return nil, wrap(err, "subscribe")
	}
	return sub, nil
}

// Close drains the connection if it was opened by Connect
func (c *Conn) Close() error {
	if !c.owned {
		return nil
	}
	if err := c.nc.Drain(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
		c.nc.Close()
		return wrap(err, "drain")
	}
	return nil
}

func copyHeader(dst nats.Header, src pubsub.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

func fromNATS(m *nats.Msg) *pubsub.Message {
	out := &pubsub.Message{
		Subject: m.Subject,
		Reply:   m.Reply,
		Data:    m.Data,
	}
	if len(m.Header) > 0 {
		out.Header = make(pubsub.Header, len(m.Header))
		for k, v := range m.Header {
			out.Header[k] = append([]string(nil), v...)
		}
	}
	return out
}

func wrap(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, nats.ErrNoResponders):
		return errors.Wrap(errors.PhaseMessaging, errors.KindClosed, err, op+": no responders")
	case stderrors.Is(err, nats.ErrConnectionClosed):
		return errors.Wrap(errors.PhaseMessaging, errors.KindClosed, err, op)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, nats.ErrTimeout):
		return errors.Timeout(errors.PhaseMessaging, op, err)
	default:
		return errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, op)
	}
}
