package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/pubsub"
)

// Handler is the part of host.Handler the facade needs
type Handler interface {
	Invoker
	Targets() *link.Targets
	Messaging() *pubsub.Pool
}

// Facade serves both messaging generations for one handler
type Facade struct {
	h Handler
}

// New creates a facade over h
func New(h Handler) *Facade {
	return &Facade{h: h}
}

// conn returns the active link name for iface and its direct connection.
func (f *Facade) conn(iface string) (string, pubsub.Conn, bool) {
	name := f.h.Targets().Get(iface)
	c, ok := f.h.Messaging().Get(name)
	return name, c, ok
}

// RequestV2 sends body to subject and waits for one response. A non-zero
// timeoutMs bounds a direct backend request.
func (f *Facade) RequestV2(ctx context.Context, subject string, body []byte, timeoutMs uint32) (BrokerMessage, error) {
	name, c, ok := f.conn(ConsumerInterface)
	if !ok {
		return ConsumerRequest(ctx, f.h, subject, body, timeoutMs)
	}

	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}
	resp, err := c.Request(ctx, subject, body)
	if err != nil {
		return BrokerMessage{}, backendError(err, name, "request on `"+subject+"`")
	}
	return BrokerMessage{Subject: resp.Subject, Body: resp.Data, ReplyTo: resp.Reply}, nil
}

// PublishV2 publishes msg, keeping its reply subject when set
func (f *Facade) PublishV2(ctx context.Context, msg BrokerMessage) error {
	name, c, ok := f.conn(ConsumerInterface)
	if !ok {
		return ConsumerPublish(ctx, f.h, msg)
	}

	var err error
	if msg.ReplyTo != "" {
		err = c.PublishWithReply(ctx, msg.Subject, msg.ReplyTo, msg.Body)
	} else {
		err = c.Publish(ctx, msg.Subject, msg.Body)
	}
	return backendError(err, name, "publish on `"+msg.Subject+"`")
}

// Connect returns a client bound to name. An empty name is the default link.
func (f *Facade) Connect(name string) (*Client, error) {
	if name == "" {
		name = link.DefaultName
	}
	return &Client{name: name}, nil
}

// Disconnect releases c. Clients hold no resources.
func (f *Facade) Disconnect(c *Client) error {
	return nil
}

// checkClient returns the active link for iface if c is bound to it.
func (f *Facade) checkClient(c *Client, iface string) (string, pubsub.Conn, bool, error) {
	target, conn, ok := f.conn(iface)
	name := c.name
	if name == "" {
		name = link.DefaultName
	}
	if name != target {
		return "", nil, false, errors.New(errors.PhaseMessaging, errors.KindMismatch).
			Link(target).
			Interface(iface).
			Detail("mismatch between link name and client connection name, `%s` != `%s`", name, target).
			Build()
	}
	return target, conn, ok, nil
}

// Send publishes msg on topic
func (f *Facade) Send(ctx context.Context, c *Client, topic string, msg Message) error {
	if err := msg.check(); err != nil {
		return err
	}
	name, conn, ok, err := f.checkClient(c, ProducerInterface)
	if err != nil {
		return err
	}
	if ok {
		return backendError(f.publishDirect(ctx, conn, topic, msg), name, "send on `"+topic+"`")
	}

	body, err := f.fallbackBody(msg)
	if err != nil {
		return err
	}
	return ConsumerPublish(ctx, f.h, BrokerMessage{Subject: topic, Body: body})
}

// Request sends msg on topic and returns the response. Without a direct
// connection the message is published and a no-response error is returned.
func (f *Facade) Request(ctx context.Context, c *Client, topic string, msg Message, opts *RequestOptions) ([]*HostMessage, error) {
	if opts != nil {
		return nil, errors.Unsupported(errors.PhaseMessaging, "`options` not currently supported")
	}
	if err := msg.check(); err != nil {
		return nil, err
	}

	name, conn, ok, err := f.checkClient(c, RequestReplyInterface)
	if err != nil {
		return nil, err
	}
	if ok {
		resp, err := f.requestDirect(ctx, conn, topic, msg)
		if err != nil {
			return nil, backendError(err, name, "request on `"+topic+"`")
		}
		return []*HostMessage{NewHostMessage(resp)}, nil
	}

	body, err := f.fallbackBody(msg)
	if err != nil {
		return nil, err
	}
	if err := ConsumerPublish(ctx, f.h, BrokerMessage{Subject: topic, Body: body}); err != nil {
		return nil, err
	}
	return nil, errors.NoResponse(errors.PhaseMessaging,
		"message sent, but returning responses is not currently supported by wRPC targets")
}

// Reply sends msg to the reply subject of replyTo
func (f *Facade) Reply(ctx context.Context, replyTo Message, msg Message) error {
	if err := replyTo.check(); err != nil {
		return err
	}
	if err := msg.check(); err != nil {
		return err
	}
	name, conn, ok := f.conn(RequestReplyInterface)
	if ok {
		subject, err := replySubject(replyTo)
		if err != nil {
			return err
		}
		return backendError(f.publishDirect(ctx, conn, subject, msg), name, "reply on `"+subject+"`")
	}

	body, err := f.fallbackBody(msg)
	if err != nil {
		return err
	}
	subject, err := replySubject(replyTo)
	if err != nil {
		return err
	}
	return ConsumerPublish(ctx, f.h, BrokerMessage{Subject: subject, Body: body})
}

func replySubject(m Message) (string, error) {
	switch m.origin {
	case OriginHost:
		if reply, ok := m.host.ReplyTo(); ok {
			return reply, nil
		}
		return "", errors.InvalidInput(errors.PhaseMessaging, "reply not set in incoming NATS.io message")
	case OriginRPC:
		if m.rpc.ReplyTo != "" {
			return m.rpc.ReplyTo, nil
		}
		return "", errors.InvalidInput(errors.PhaseMessaging, "reply not set in incoming wRPC message")
	default:
		return "", errors.Unsupported(errors.PhaseMessaging, "cannot reply to guest message")
	}
}

func (f *Facade) publishDirect(ctx context.Context, c pubsub.Conn, subject string, msg Message) error {
	switch msg.origin {
	case OriginHost:
		if hdr := msg.host.msg.Header; hdr != nil {
			return c.PublishWithHeaders(ctx, subject, hdr, msg.host.msg.Data)
		}
		return c.Publish(ctx, subject, msg.host.msg.Data)
	case OriginRPC:
		return c.Publish(ctx, subject, msg.rpc.Body)
	default:
		g := msg.guest
		if g.ContentType != "" {
			Logger().Warn("`content-type` not supported by the messaging backend, value is ignored",
				zap.String("content_type", g.ContentType))
		}
		if g.Metadata != nil {
			return c.PublishWithHeaders(ctx, subject, g.Metadata.header(), g.Data)
		}
		return c.Publish(ctx, subject, g.Data)
	}
}

func (f *Facade) requestDirect(ctx context.Context, c pubsub.Conn, subject string, msg Message) (*pubsub.Message, error) {
	switch msg.origin {
	case OriginHost:
		if hdr := msg.host.msg.Header; hdr != nil {
			return c.RequestWithHeaders(ctx, subject, hdr.Clone(), msg.host.msg.Data)
		}
		return c.Request(ctx, subject, msg.host.msg.Data)
	case OriginRPC:
		return c.Request(ctx, subject, msg.rpc.Body)
	default:
		g := msg.guest
		if g.ContentType != "" {
			Logger().Warn("`content-type` not supported by the messaging backend, value is ignored",
				zap.String("content_type", g.ContentType))
		}
		if g.Metadata != nil {
			return c.RequestWithHeaders(ctx, subject, g.Metadata.header(), g.Data)
		}
		return c.Request(ctx, subject, g.Data)
	}
}

// fallbackBody extracts the payload for the consumer interface, which
// carries neither headers nor metadata.
func (f *Facade) fallbackBody(msg Message) ([]byte, error) {
	switch msg.origin {
	case OriginHost:
		if msg.host.msg.Header != nil {
			return nil, errors.Unsupported(errors.PhaseMessaging, "headers not currently supported by wRPC targets")
		}
		return msg.host.msg.Data, nil
	case OriginRPC:
		return msg.rpc.Body, nil
	default:
		g := msg.guest
		if g.Metadata != nil {
			return nil, errors.Unsupported(errors.PhaseMessaging, "`metadata` not currently supported by wRPC targets")
		}
		if g.ContentType != "" {
			Logger().Warn("`content-type` not currently supported by wRPC targets, value is ignored",
				zap.String("content_type", g.ContentType))
		}
		return g.Data, nil
	}
}

func backendError(err error, linkName, op string) error {
	if err == nil {
		return nil
	}
	return errors.New(errors.PhaseMessaging, errors.KindTransport).
		Link(linkName).
		Cause(err).
		Detail("%s", op).
		Build()
}
