package natsps

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/internal/natstest"
	"github.com/wippyai/wasmbus/pubsub"
)

func TestPublishVariants(t *testing.T) {
	_, nc := natstest.Run(t)
	conn := Wrap(nc)
	ctx := context.Background()

	sub, err := nc.SubscribeSync("events.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	require.NoError(t, conn.Publish(ctx, "events.plain", []byte("a")))
	require.NoError(t, conn.PublishWithReply(ctx, "events.reply", "answers", []byte("b")))
	hdr := pubsub.Header{}
	hdr.Add("X-Trace", "t1")
	require.NoError(t, conn.PublishWithHeaders(ctx, "events.headers", hdr, []byte("c")))

	m, err := sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "events.plain", m.Subject)
	assert.Equal(t, "a", string(m.Data))

	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answers", m.Reply)

	m, err = sub.NextMsg(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "t1", m.Header.Get("X-Trace"))
}

func TestRequest(t *testing.T) {
	_, nc := natstest.Run(t)
	conn := Wrap(nc)
	ctx := context.Background()

	sub, err := conn.Subscribe(ctx, "svc.echo", func(m *pubsub.Message) {
		reply := nats.NewMsg(m.Reply)
		reply.Data = append([]byte("echo:"), m.Data...)
		if v := m.Header.Get("X-Id"); v != "" {
			reply.Header.Set("X-Id", v)
		}
		_ = nc.PublishMsg(reply)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	resp, err := conn.Request(ctx, "svc.echo", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(resp.Data))

	hdr := pubsub.Header{}
	hdr.Set("X-Id", "42")
	resp, err = conn.RequestWithHeaders(ctx, "svc.echo", hdr, []byte("there"))
	require.NoError(t, err)
	assert.Equal(t, "echo:there", string(resp.Data))
	assert.Equal(t, "42", resp.Header.Get("X-Id"))
}

func TestRequestFailures(t *testing.T) {
	_, nc := natstest.Run(t)
	conn := Wrap(nc)

	_, err := conn.Request(context.Background(), "nobody.home", nil)
	assert.True(t, errors.HasKind(err, errors.KindClosed))
	assert.Equal(t, errors.InvocationErrorNotFound, errors.Classify(err))

	sub, err := nc.Subscribe("slow", func(*nats.Msg) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = conn.Request(ctx, "slow", nil)
	assert.True(t, errors.HasKind(err, errors.KindTimeout))
}

func TestConnectOwnsConnection(t *testing.T) {
	s, _ := natstest.Run(t)

	conn, err := Connect(s.ClientURL())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return conn.NATS().IsClosed() }, time.Second, 10*time.Millisecond)

	_, nc := natstest.Run(t)
	wrapped := Wrap(nc)
	require.NoError(t, wrapped.Close())
	assert.False(t, nc.IsClosed())
}
