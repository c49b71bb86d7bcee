package messaging

import (
	"context"
	"io"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/link"
	"github.com/wippyai/wasmbus/stream"
	"github.com/wippyai/wasmbus/wrpc"
)

// Interfaces whose link names select the messaging connection
const (
	ConsumerInterface     = "wasmcloud:messaging/consumer"
	ProducerInterface     = "wasmcloud:messaging/producer"
	RequestReplyInterface = "wasmcloud:messaging/request-reply"
)

// ConsumerInstance is the versioned instance the fallback path invokes
const ConsumerInstance = ConsumerInterface + "@0.2.0"

var (
	bytesType = &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}

	brokerMessageType = &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
		{Name: "subject", Type: wit.String{}},
		{Name: "body", Type: bytesType},
		{Name: "reply-to", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}},
	}}}

	requestParams = []wit.Type{wit.String{}, bytesType, wit.U32{}}
	requestResult = &wit.TypeDef{Kind: &wit.Result{OK: brokerMessageType, Err: wit.String{}}}
	publishParams = []wit.Type{brokerMessageType}
	publishResult = &wit.TypeDef{Kind: &wit.Result{Err: wit.String{}}}
)

// BrokerMessageType returns the wit type of broker-message
func BrokerMessageType() *wit.TypeDef {
	return brokerMessageType
}

func (m BrokerMessage) value() map[string]any {
	v := map[string]any{
		"subject": m.Subject,
		"body":    m.Body,
	}
	if m.ReplyTo != "" {
		v["reply-to"] = m.ReplyTo
	}
	return v
}

func brokerMessageFrom(v any) (BrokerMessage, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return BrokerMessage{}, errors.InvalidInput(errors.PhaseCodec, "broker-message is not a record")
	}
	var m BrokerMessage
	m.Subject, _ = rec["subject"].(string)
	m.Body, _ = rec["body"].([]byte)
	m.ReplyTo, _ = rec["reply-to"].(string)
	return m, nil
}

// Invoker is the dispatch half of host.Handler
type Invoker interface {
	Invoke(ctx context.Context, target link.Target, instance, function string, params []byte, paths ...stream.Path) (*stream.Outgoing, *stream.Incoming, error)
}

// ConsumerRequest calls consumer.request(subject, body, timeout-ms)
// through inv and returns the response message.
func ConsumerRequest(ctx context.Context, inv Invoker, subject string, body []byte, timeoutMs uint32) (BrokerMessage, error) {
	params, err := wrpc.EncodeParams(requestParams, []any{subject, body, timeoutMs})
	if err != nil {
		return BrokerMessage{}, err
	}
	v, err := call(ctx, inv, "request", params, requestResult)
	if err != nil {
		return BrokerMessage{}, err
	}
	return brokerMessageFrom(v)
}

// ConsumerPublish calls consumer.publish(msg) through inv
func ConsumerPublish(ctx context.Context, inv Invoker, msg BrokerMessage) error {
	params, err := wrpc.EncodeParams(publishParams, []any{msg.value()})
	if err != nil {
		return err
	}
	_, err = call(ctx, inv, "publish", params, publishResult)
	return err
}

func call(ctx context.Context, inv Invoker, function string, params []byte, result wit.Type) (any, error) {
	out, in, err := inv.Invoke(ctx, link.TargetNone, ConsumerInstance, function, params)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	if err := out.Close(); err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, "finish consumer."+function+" parameters")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMessaging, errors.KindTransport, err, "read consumer."+function+" results")
	}
	v, err := wrpc.Decode(result, data)
	if err != nil {
		return nil, err
	}

	res := v.(map[string]any)
	if msg, failed := res["err"]; failed {
		s, _ := msg.(string)
		return nil, errors.New(errors.PhaseMessaging, errors.KindTransport).
			Interface(ConsumerInstance).
			Detail("%s", s).
			Build()
	}
	return res["ok"], nil
}
