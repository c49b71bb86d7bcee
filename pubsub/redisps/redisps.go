// Package redisps is the Redis pub/sub backend.
//
// Redis channels carry only a payload, so every message is wrapped in a
// msgpack envelope holding the reply subject and headers. A request
// subscribes to a unique reply channel before publishing and waits for the
// first message on it.
package redisps

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/pubsub"
)

// ReplyPrefix prefixes generated reply channels
const ReplyPrefix = "_INBOX."

type envelope struct {
	Header map[string][]string `msgpack:"h,omitempty"`
	Reply  string              `msgpack:"r,omitempty"`
	Data   []byte              `msgpack:"d"`
}

// Conn adapts a Redis client to pubsub.Conn
type Conn struct {
	rdb   *redis.Client
	owned bool
}

var _ pubsub.Conn = (*Conn)(nil)

// Connect parses a redis:// URL and owns the resulting client
func Connect(ctx context.Context, url string) (*Conn, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindInvalidInput, err, "parse "+url)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, "connect to "+url)
	}
	return &Conn{rdb: rdb, owned: true}, nil
}

// Wrap adapts an existing client. Close leaves rdb open.
func Wrap(rdb *redis.Client) *Conn {
	return &Conn{rdb: rdb}
}

// Encode wraps a message in the envelope published on a channel
func Encode(m *pubsub.Message) ([]byte, error) {
	b, err := msgpack.Marshal(&envelope{Header: m.Header, Reply: m.Reply, Data: m.Data})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindInvalidInput, err, "encode envelope")
	}
	return b, nil
}

// Decode unwraps a payload received on channel
func Decode(channel string, payload []byte) (*pubsub.Message, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindInvalidInput, err, "decode envelope")
	}
	m := &pubsub.Message{Subject: channel, Reply: env.Reply, Data: env.Data}
	if len(env.Header) > 0 {
		m.Header = pubsub.Header(env.Header)
	}
	return m, nil
}

func (c *Conn) publish(ctx context.Context, m *pubsub.Message) (int64, error) {
	payload, err := Encode(m)
	if err != nil {
		return 0, err
	}
	n, err := c.rdb.Publish(ctx, m.Subject, payload).Result()
	if err != nil {
		return 0, wrap(err, "publish")
	}
	return n, nil
}

func (c *Conn) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.publish(ctx, &pubsub.Message{Subject: subject, Data: data})
	return err
}

func (c *Conn) PublishWithReply(ctx context.Context, subject, reply string, data []byte) error {
	_, err := c.publish(ctx, &pubsub.Message{Subject: subject, Reply: reply, Data: data})
	return err
}

func (c *Conn) PublishWithHeaders(ctx context.Context, subject string, hdr pubsub.Header, data []byte) error {
	_, err := c.publish(ctx, &pubsub.Message{Subject: subject, Header: hdr, Data: data})
	return err
}

func (c *Conn) Request(ctx context.Context, subject string, data []byte) (*pubsub.Message, error) {
	return c.RequestWithHeaders(ctx, subject, nil, data)
}

func (c *Conn) RequestWithHeaders(ctx context.Context, subject string, hdr pubsub.Header, data []byte) (*pubsub.Message, error) {
	reply := ReplyPrefix + uuid.NewString()

	ps := c.rdb.Subscribe(ctx, reply)
	defer ps.Close()
	// Wait for the subscription confirmation so the reply cannot be missed.
	if _, err := ps.Receive(ctx); err != nil {
		return nil, wrap(err, "subscribe to reply")
	}

	n, err := c.publish(ctx, &pubsub.Message{Subject: subject, Reply: reply, Header: hdr, Data: data})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.Closed(errors.PhaseMessaging, "request: no responders on `"+subject+"`")
	}

	msg, err := ps.ReceiveMessage(ctx)
	if err != nil {
		return nil, wrap(err, "receive reply")
	}
	return Decode(msg.Channel, []byte(msg.Payload))
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

func (s *subscription) Unsubscribe() error {
	err := s.ps.Close()
	<-s.done
	return wrap(err, "unsubscribe")
}

func (c *Conn) Subscribe(ctx context.Context, subject string, fn func(*pubsub.Message)) (pubsub.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, subject)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, wrap(err, "subscribe")
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(sub.done)
		for msg := range ch {
			m, err := Decode(msg.Channel, []byte(msg.Payload))
			if err != nil {
				Logger().Warn("dropping malformed message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(m)
		}
	}()
	return sub, nil
}

// Close closes the client if it was opened by Connect
func (c *Conn) Close() error {
	if !c.owned {
		return nil
	}
	return wrap(c.rdb.Close(), "close")
}

func wrap(err error, op string) error {
	var ne net.Error
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, redis.ErrClosed):
		return errors.Wrap(errors.PhaseMessaging, errors.KindClosed, err, op)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.As(err, &ne) && ne.Timeout():
		return errors.Timeout(errors.PhaseMessaging, op, err)
	default:
		return errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, op)
	}
}
