package natsrpc

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/internal/natstest"
	"github.com/wippyai/wasmbus/stream"
	"github.com/wippyai/wasmbus/transport"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "default.kv-redis.wrpc.0.0.1.wasi:keyvalue/store.get",
		Subject("default.kv-redis", "wasi:keyvalue/store", "get"))
	assert.Equal(t, "_INBOX.x.r.1.*.0", pathSubject("_INBOX.x.r", stream.Path{1, stream.Wildcard, 0}))
	assert.Equal(t, "_INBOX.x.r", pathSubject("_INBOX.x.r", nil))
}

func TestInvokeRoundTrip(t *testing.T) {
	_, nc := natstest.Run(t)
	ctx := context.Background()

	headers := make(chan transport.Header, 1)
	sub, err := Serve(ctx, nc, "default.echo", "test:echo/echo", "shout", func(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error {
		headers <- hdr
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		_, err = w.Write(bytes.ToUpper(data))
		return err
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	hdr := transport.Header{}
	hdr.Set(transport.HeaderSourceID, "caller")
	hdr.Set(transport.HeaderLinkName, "default")

	client := NewClient(nc, "default.echo")
	out, in, err := client.Invoke(ctx, hdr, "test:echo/echo", "shout", []byte("hello "))
	require.NoError(t, err)

	_, err = out.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())

	data, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", string(data))
	require.NoError(t, in.Close())

	gotHeader := <-headers
	assert.Equal(t, "caller", gotHeader.Get(transport.HeaderSourceID))
	assert.Equal(t, "default", gotHeader.Get(transport.HeaderLinkName))
	assert.NotEmpty(t, gotHeader.Get(HeaderInvocation))

	_, err = out.Write([]byte("late"))
	assert.True(t, errors.HasKind(err, errors.KindClosed))
}

func TestInvokeHandlerError(t *testing.T) {
	_, nc := natstest.Run(t)
	ctx := context.Background()

	sub, err := Serve(ctx, nc, "p", "test:fail/fail", "run", func(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error {
		return stderrors.New("boom")
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	out, in, err := NewClient(nc, "p").Invoke(ctx, transport.Header{}, "test:fail/fail", "run", nil)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	_, err = io.ReadAll(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, errors.InvocationErrorTrap, errors.Classify(err))
}

func TestInvokeNoResponders(t *testing.T) {
	_, nc := natstest.Run(t)

	_, _, err := NewClient(nc, "default.nobody").Invoke(context.Background(), transport.Header{}, "wasi:keyvalue/store", "get", nil)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindClosed))
	assert.Equal(t, errors.InvocationErrorNotFound, errors.Classify(err))
}

func TestInvokeTimeout(t *testing.T) {
	_, nc := natstest.Run(t)

	// Subscribed but never answers the handshake.
	sub, err := nc.Subscribe(Subject("p", "test:slow/slow", "run"), func(*nats.Msg) {})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	inv := transport.WithTimeout(NewClient(nc, "p"), 50*time.Millisecond)
	_, _, err = inv.Invoke(context.Background(), transport.Header{}, "test:slow/slow", "run", nil)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindTimeout))
}

func TestIndexedResults(t *testing.T) {
	_, nc := natstest.Run(t)
	ctx := context.Background()

	sub, err := Serve(ctx, nc, "p", "test:multi/multi", "run", func(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error {
		inbox := hdr.Get(HeaderResults)
		side := &sink{nc: nc, subject: pathSubject(resultSubject(inbox), stream.Path{0})}
		if _, err := side.Write([]byte("nested")); err != nil {
			return err
		}
		if err := side.Close(); err != nil {
			return err
		}
		_, err := w.Write([]byte("main"))
		return err
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	out, in, err := NewClient(nc, "p").Invoke(ctx, transport.Header{}, "test:multi/multi", "run", nil, stream.Path{0})
	require.NoError(t, err)
	require.NoError(t, out.Close())

	nested, err := in.Index(0)
	require.NoError(t, err)
	data, err := io.ReadAll(nested)
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	data, err = io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "main", string(data))

	_, err = in.Index(7)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))

	_, err = out.Index(stream.Wildcard)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	require.NoError(t, in.Close())
	_, err = in.Read(make([]byte, 1))
	assert.True(t, errors.HasKind(err, errors.KindClosed))
}

func TestDialer(t *testing.T) {
	s, _ := natstest.Run(t)
	nc := natstest.Connect(t, s)

	d := NewDialer(nc)
	inv, err := d.Dial(transport.Session("default", "kv"))
	require.NoError(t, err)
	assert.Equal(t, "default.kv", inv.(*Client).prefix)

	nc.Close()
	_, err = d.Dial("default.kv")
	assert.True(t, errors.HasKind(err, errors.KindClosed))
}
