package natsrpc

import (
	"bytes"
	"context"
	"io"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/transport"
)

// Handler serves one invocation. r yields the parameters until the client
// closes its stream; bytes written to w are streamed back as results.
// A returned error is delivered to the client in place of end-of-stream.
type Handler func(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error

// Serve subscribes h to invocations of function on instance under prefix.
// Each invocation runs on its own goroutine. Unsubscribe the returned
// subscription to stop serving.
func Serve(ctx context.Context, nc *nats.Conn, prefix, instance, function string, h Handler) (*nats.Subscription, error) {
	subject := Subject(prefix, instance, function)
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		go serveOne(ctx, nc, m, h)
	})
	if err != nil {
		return nil, transportError(err, "subscribe to `"+subject+"`")
	}
	Logger().Debug("serving", zap.String("subject", subject))
	return sub, nil
}

func serveOne(ctx context.Context, nc *nats.Conn, m *nats.Msg, h Handler) {
	log := Logger().With(
		zap.String("subject", m.Subject),
		zap.String("invocation_id", m.Header.Get(HeaderInvocation)))

	inbox := m.Header.Get(HeaderResults)
	if inbox == "" || m.Reply == "" {
		log.Warn("rejecting invocation without a results inbox")
		reject(nc, m, "missing results inbox")
		return
	}

	paramInbox := nats.NewInbox()
	psub, err := nc.SubscribeSync(paramInbox)
	if err != nil {
		log.Warn("failed to subscribe to parameter inbox", zap.Error(err))
		reject(nc, m, err.Error())
		return
	}
	defer func() { _ = ignoreBadSub(psub.Unsubscribe()) }()

	ack := nats.NewMsg(m.Reply)
	ack.Reply = paramInbox
	if err := nc.PublishMsg(ack); err != nil {
		log.Warn("failed to acknowledge invocation", zap.Error(err))
		return
	}

	r := io.MultiReader(bytes.NewReader(m.Data), &subReader{ctx: ctx, sub: psub})
	w := &sink{nc: nc, subject: resultSubject(inbox)}

	if err := h(ctx, fromNATS(m.Header), r, w); err != nil {
		log.Warn("invocation failed", zap.Error(err))
		fail := nats.NewMsg(w.subject)
		fail.Header.Set(HeaderError, err.Error())
		if perr := nc.PublishMsg(fail); perr != nil {
			log.Warn("failed to deliver invocation error", zap.Error(perr))
		}
		return
	}
	if err := w.Close(); err != nil {
		log.Warn("failed to close results", zap.Error(err))
	}
}

func reject(nc *nats.Conn, m *nats.Msg, reason string) {
	if m.Reply == "" {
		return
	}
	rej := nats.NewMsg(m.Reply)
	rej.Header.Set(HeaderError, reason)
	_ = nc.PublishMsg(rej)
}

// subReader reads chunks published to a parameter inbox
type subReader struct {
	ctx context.Context
	sub *nats.Subscription
	buf []byte
	eof bool
}

func (r *subReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		m, err := r.sub.NextMsgWithContext(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return 0, errors.Wrap(errors.PhaseTransport, errors.KindClosed, err, "server shutting down")
			}
			return 0, transportError(err, "receive parameters")
		}
		if len(m.Data) == 0 {
			r.eof = true
			return 0, io.EOF
		}
		r.buf = m.Data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
