package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/host"
	"github.com/wippyai/wasmbus/internal/natstest"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/pubsub"
	"github.com/wippyai/wasmbus/pubsub/natsps"
	"github.com/wippyai/wasmbus/pubsub/redisps"
	"github.com/wippyai/wasmbus/transport"
	"github.com/wippyai/wasmbus/transport/natsrpc"
)

const providerID = "messaging-nats"

func messagingGraph() *link.Graph {
	graph := link.NewGraph()
	for _, iface := range []string{ConsumerInterface, ProducerInterface, RequestReplyInterface} {
		graph.Put(link.DefaultName, iface, providerID)
	}
	return graph
}

// direct returns a facade whose default link has a NATS connection.
func direct(t *testing.T) (*Facade, *nats.Conn) {
	t.Helper()
	_, nc := natstest.Run(t)
	pool := pubsub.NewPool()
	pool.Put(link.DefaultName, natsps.Wrap(nc))
	h := host.NewHandler(host.Options{ComponentID: "guest", Links: messagingGraph(), Messaging: pool})
	return New(h), nc
}

// fallback returns a facade without direct connections whose consumer
// link reaches a Provider over backend.
func fallback(t *testing.T, backend func(nc *nats.Conn) pubsub.Conn) (*Facade, *nats.Conn) {
	t.Helper()
	_, nc := natstest.Run(t)
	p, err := ServeConsumer(context.Background(), nc, transport.Session("lattice", providerID), backend(nc))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	h := host.NewHandler(host.Options{
		ComponentID: "guest",
		Lattice:     "lattice",
		Links:       messagingGraph(),
		Dialer:      natsrpc.NewDialer(nc),
	})
	return New(h), nc
}

func natsBackend(nc *nats.Conn) pubsub.Conn { return natsps.Wrap(nc) }

func responder(t *testing.T, nc *nats.Conn, subject string) {
	t.Helper()
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		resp := nats.NewMsg(m.Reply)
		resp.Data = append([]byte("re:"), m.Data...)
		resp.Header.Set("X-Echo", m.Header.Get("X-Id"))
		_ = m.RespondMsg(resp)
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func observe(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })
	return logs
}

func TestDirectRequestV2(t *testing.T) {
	f, nc := direct(t)
	responder(t, nc, "svc.echo")

	resp, err := f.RequestV2(context.Background(), "svc.echo", []byte("ping"), 1000)
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(resp.Body))

	_, err = f.RequestV2(context.Background(), "svc.nobody", nil, 1000)
	require.Error(t, err)
	assert.Equal(t, errors.InvocationErrorNotFound, errors.Classify(err))
}

func TestDirectPublishV2(t *testing.T) {
	f, nc := direct(t)
	sub, err := nc.SubscribeSync("events")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, f.PublishV2(context.Background(), BrokerMessage{Subject: "events", Body: []byte("a")}))
	require.NoError(t, f.PublishV2(context.Background(), BrokerMessage{Subject: "events", Body: []byte("b"), ReplyTo: "answers"}))

	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(m.Data))
	assert.Empty(t, m.Reply)

	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answers", m.Reply)
}

func TestConnect(t *testing.T) {
	f := New(host.NewHandler(host.Options{}))

	c, err := f.Connect("")
	require.NoError(t, err)
	assert.Equal(t, link.DefaultName, c.Name())

	c, err = f.Connect("events")
	require.NoError(t, err)
	assert.Equal(t, "events", c.Name())
	assert.NoError(t, f.Disconnect(c))
}

func TestClientLinkMismatch(t *testing.T) {
	f, _ := direct(t)
	c, err := f.Connect("other")
	require.NoError(t, err)

	err = f.Send(context.Background(), c, "events", FromGuest(GuestMessage{Data: []byte("x")}))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindMismatch))
	assert.Contains(t, err.Error(), "mismatch between link name and client connection name, `other` != `default`")

	_, err = f.Request(context.Background(), c, "svc", FromGuest(GuestMessage{}), nil)
	assert.True(t, errors.HasKind(err, errors.KindMismatch))
}

func TestDirectSend(t *testing.T) {
	f, nc := direct(t)
	logs := observe(t)
	c, _ := f.Connect("")
	sub, err := nc.SubscribeSync("events")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	ctx := context.Background()

	require.NoError(t, f.Send(ctx, c, "events", FromGuest(GuestMessage{
		ContentType: "application/json",
		Metadata:    Metadata{{"X-Id", "7"}},
		Data:        []byte(`{}`),
	})))
	fwd := NewHostMessage(&pubsub.Message{Subject: "in", Data: []byte("fwd")})
	fwd.AddMetadata("X-Hop", "1")
	require.NoError(t, f.Send(ctx, c, "events", FromHost(fwd)))
	require.NoError(t, f.Send(ctx, c, "events", FromRPC(BrokerMessage{Subject: "ignored", Body: []byte("rpc")})))

	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "7", m.Header.Get("X-Id"))
	assert.Equal(t, `{}`, string(m.Data))

	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", m.Header.Get("X-Hop"))
	assert.Equal(t, "fwd", string(m.Data))

	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "rpc", string(m.Data))

	warned := logs.FilterField(zap.String("content_type", "application/json")).All()
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0].Message, "value is ignored")
}

func TestDirectRequest(t *testing.T) {
	f, nc := direct(t)
	responder(t, nc, "svc.echo")
	c, _ := f.Connect("")

	resp, err := f.Request(context.Background(), c, "svc.echo", FromGuest(GuestMessage{
		Metadata: Metadata{{"X-Id", "42"}},
		Data:     []byte("hi"),
	}), nil)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, "re:hi", string(resp[0].Data()))
	md, ok := resp[0].Metadata()
	require.True(t, ok)
	assert.Contains(t, md, KeyValue{"X-Echo", "42"})
}

func TestRequestOptionsRejected(t *testing.T) {
	f, nc := direct(t)
	responder(t, nc, "svc.echo")
	c, _ := f.Connect("")

	_, err := f.Request(context.Background(), c, "svc.echo", FromGuest(GuestMessage{}), &RequestOptions{TimeoutMs: 10})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindUnsupported))
	assert.Contains(t, err.Error(), "`options` not currently supported")
}

func TestDirectReply(t *testing.T) {
	f, nc := direct(t)
	sub, err := nc.SubscribeSync("_INBOX.reply")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	ctx := context.Background()

	incoming := FromHost(NewHostMessage(&pubsub.Message{Subject: "svc", Reply: "_INBOX.reply"}))
	require.NoError(t, f.Reply(ctx, incoming, FromGuest(GuestMessage{Data: []byte("answer")})))
	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer", string(m.Data))

	require.NoError(t, f.Reply(ctx, FromRPC(BrokerMessage{ReplyTo: "_INBOX.reply"}), FromRPC(BrokerMessage{Body: []byte("rpc")})))
	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "rpc", string(m.Data))

	tests := []struct {
		name    string
		replyTo Message
		want    string
	}{
		{"host without reply", FromHost(NewHostMessage(&pubsub.Message{Subject: "svc"})), "reply not set in incoming NATS.io message"},
		{"rpc without reply", FromRPC(BrokerMessage{Subject: "svc"}), "reply not set in incoming wRPC message"},
		{"guest", FromGuest(GuestMessage{}), "cannot reply to guest message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.Reply(ctx, tt.replyTo, FromGuest(GuestMessage{Data: []byte("x")}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFallbackPublishAndRequestV2(t *testing.T) {
	f, nc := fallback(t, natsBackend)
	responder(t, nc, "svc.echo")
	sub, err := nc.SubscribeSync("events")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	ctx := context.Background()

	require.NoError(t, f.PublishV2(ctx, BrokerMessage{Subject: "events", Body: []byte("via-rpc"), ReplyTo: "answers"}))
	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "via-rpc", string(m.Data))
	assert.Equal(t, "answers", m.Reply)

	resp, err := f.RequestV2(ctx, "svc.echo", []byte("ping"), 1000)
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(resp.Body))

	_, err = f.RequestV2(ctx, "svc.nobody", nil, 1000)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindTransport))
}

func TestFallbackRejectsHeadersAndMetadata(t *testing.T) {
	f, nc := fallback(t, natsBackend)
	logs := observe(t)
	c, _ := f.Connect("")
	sub, err := nc.SubscribeSync("events")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())
	ctx := context.Background()

	withHeaders := NewHostMessage(&pubsub.Message{Subject: "in"})
	withHeaders.AddMetadata("X-Id", "1")
	err = f.Send(ctx, c, "events", FromHost(withHeaders))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindUnsupported))
	assert.Contains(t, err.Error(), "headers not currently supported by wRPC targets")

	err = f.Send(ctx, c, "events", FromGuest(GuestMessage{Metadata: Metadata{}, Data: []byte("x")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "`metadata` not currently supported by wRPC targets")

	_, err = sub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout, "rejected messages must not be published")

	require.NoError(t, f.Send(ctx, c, "events", FromGuest(GuestMessage{ContentType: "text/plain", Data: []byte("ok")})))
	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(m.Data))
	assert.Len(t, logs.FilterField(zap.String("content_type", "text/plain")).All(), 1)
}

func TestFallbackRequestReportsNoResponse(t *testing.T) {
	f, nc := fallback(t, natsBackend)
	c, _ := f.Connect("")
	sub, err := nc.SubscribeSync("svc.work")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	resp, err := f.Request(context.Background(), c, "svc.work", FromGuest(GuestMessage{Data: []byte("job")}), nil)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.HasKind(err, errors.KindNoResponse))
	assert.Contains(t, err.Error(), "message sent, but returning responses is not currently supported by wRPC targets")

	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job", string(m.Data))
}

func TestFallbackReply(t *testing.T) {
	f, nc := fallback(t, natsBackend)
	sub, err := nc.SubscribeSync("_INBOX.r")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	replyTo := FromRPC(BrokerMessage{Subject: "svc", ReplyTo: "_INBOX.r"})
	require.NoError(t, f.Reply(context.Background(), replyTo, FromGuest(GuestMessage{Data: []byte("done")})))
	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", string(m.Data))

	withHeaders := NewHostMessage(&pubsub.Message{})
	withHeaders.AddMetadata("k", "v")
	err = f.Reply(context.Background(), FromGuest(GuestMessage{}), FromHost(withHeaders))
	assert.Contains(t, err.Error(), "headers not currently supported by wRPC targets", "body is checked before the reply subject")
}

func TestFallbackOverRedisProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	backend := redisps.Wrap(rdb)

	f, _ := fallback(t, func(*nats.Conn) pubsub.Conn { return backend })
	ctx := context.Background()

	got := make(chan *pubsub.Message, 1)
	sub, err := backend.Subscribe(ctx, "jobs", func(m *pubsub.Message) { got <- m })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, f.PublishV2(ctx, BrokerMessage{Subject: "jobs", Body: []byte("j1")}))
	select {
	case m := <-got:
		assert.Equal(t, "j1", string(m.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("message did not reach redis")
	}
}

func TestFallbackWithoutProvider(t *testing.T) {
	_, nc := natstest.Run(t)
	h := host.NewHandler(host.Options{ComponentID: "guest", Links: messagingGraph(), Dialer: natsrpc.NewDialer(nc)})
	f := New(h)

	err := f.PublishV2(context.Background(), BrokerMessage{Subject: "x"})
	require.Error(t, err)
	assert.Equal(t, errors.InvocationErrorNotFound, h.InvocationErrorKind(err))
}

func TestNilHostMessageRejected(t *testing.T) {
	ctx := context.Background()
	guest := FromGuest(GuestMessage{Data: []byte("x")})
	empty := FromHost(nil)

	for name, f := range map[string]*Facade{"direct": first(direct(t)), "fallback": first(fallback(t, natsBackend))} {
		t.Run(name, func(t *testing.T) {
			c, _ := f.Connect("")

			err := f.Send(ctx, c, "svc.work", empty)
			assert.True(t, errors.HasKind(err, errors.KindInvalidInput), "Send: %v", err)

			_, err = f.Request(ctx, c, "svc.work", empty, nil)
			assert.True(t, errors.HasKind(err, errors.KindInvalidInput), "Request: %v", err)

			err = f.Reply(ctx, empty, guest)
			assert.True(t, errors.HasKind(err, errors.KindInvalidInput), "Reply to: %v", err)

			err = f.Reply(ctx, FromRPC(BrokerMessage{Subject: "a", ReplyTo: "b"}), empty)
			assert.True(t, errors.HasKind(err, errors.KindInvalidInput), "Reply with: %v", err)
		})
	}
}

func first(f *Facade, _ *nats.Conn) *Facade { return f }
