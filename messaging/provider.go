package messaging

import (
	"context"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"go.bytecodealliance.org/wit"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/pubsub"
	"github.com/wippyai/wasmbus/transport"
	"github.com/wippyai/wasmbus/transport/natsrpc"
	"github.com/wippyai/wasmbus/wrpc"
)

// Provider serves wasmcloud:messaging/consumer@0.2.0 on a lattice
// session and forwards every call to a pub/sub backend.
type Provider struct {
	conn pubsub.Conn
	subs []*nats.Subscription
}

// ServeConsumer starts serving the consumer interface under prefix, which
// is usually transport.Session(lattice, providerID).
func ServeConsumer(ctx context.Context, nc *nats.Conn, prefix string, conn pubsub.Conn) (*Provider, error) {
	p := &Provider{conn: conn}
	for fn, h := range map[string]natsrpc.Handler{
		"request": p.request,
		"publish": p.publish,
	} {
		sub, err := natsrpc.Serve(ctx, nc, prefix, ConsumerInstance, fn, h)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.subs = append(p.subs, sub)
	}
	return p, nil
}

// Close stops serving. The backend connection is left open.
func (p *Provider) Close() error {
	var err error
	for _, sub := range p.subs {
		err = multierr.Append(err, sub.Unsubscribe())
	}
	p.subs = nil
	return err
}

func (p *Provider) request(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	args, err := wrpc.DecodeResults(requestParams, data)
	if err != nil {
		return err
	}
	subject, body, timeoutMs := args[0].(string), args[1].([]byte), args[2].(uint32)

	Logger().Debug("consumer request",
		zap.String("subject", subject),
		zap.String("source_id", hdr.Get(transport.HeaderSourceID)))

	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	var result map[string]any
	if resp, err := p.conn.Request(ctx, subject, body); err != nil {
		result = map[string]any{"err": err.Error()}
	} else {
		msg := BrokerMessage{Subject: resp.Subject, Body: resp.Data, ReplyTo: resp.Reply}
		result = map[string]any{"ok": msg.value()}
	}
	return writeValue(w, requestResult, result)
}

func (p *Provider) publish(ctx context.Context, hdr transport.Header, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	args, err := wrpc.DecodeResults(publishParams, data)
	if err != nil {
		return err
	}
	msg, err := brokerMessageFrom(args[0])
	if err != nil {
		return err
	}

	Logger().Debug("consumer publish",
		zap.String("subject", msg.Subject),
		zap.String("source_id", hdr.Get(transport.HeaderSourceID)))

	if msg.ReplyTo != "" {
		err = p.conn.PublishWithReply(ctx, msg.Subject, msg.ReplyTo, msg.Body)
	} else {
		err = p.conn.Publish(ctx, msg.Subject, msg.Body)
	}
	result := map[string]any{"ok": nil}
	if err != nil {
		result = map[string]any{"err": err.Error()}
	}
	return writeValue(w, publishResult, result)
}

func writeValue(w io.Writer, t *wit.TypeDef, v any) error {
	b, err := wrpc.Encode(t, v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
