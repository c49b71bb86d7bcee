package messaging

import (
	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/pubsub"
)

// BrokerMessage is the message shape of the 0.2 interface and of the
// consumer wRPC interface. An empty ReplyTo means no reply subject.
type BrokerMessage struct {
	Subject string
	ReplyTo string
	Body    []byte
}

// KeyValue is one metadata entry
type KeyValue struct {
	Key   string
	Value string
}

// Metadata is an ordered list of entries; keys may repeat.
// A nil Metadata means the message carries none.
type Metadata []KeyValue

func (md Metadata) header() pubsub.Header {
	h := make(pubsub.Header, len(md))
	for _, kv := range md {
		h.Add(kv.Key, kv.Value)
	}
	return h
}

func metadataOf(h pubsub.Header) Metadata {
	md := Metadata{}
	for _, k := range h.Keys() {
		for _, v := range h.Values(k) {
			md = append(md, KeyValue{Key: k, Value: v})
		}
	}
	return md
}

// HostMessage is a message received from a pub/sub backend
type HostMessage struct {
	msg pubsub.Message
}

// NewHostMessage wraps a backend message
func NewHostMessage(m *pubsub.Message) *HostMessage {
	msg := *m
	msg.Header = m.Header.Clone()
	return &HostMessage{msg: msg}
}

// Topic returns the subject the message arrived on
func (m *HostMessage) Topic() (string, bool) {
	return m.msg.Subject, true
}

// ContentType is never set on host messages
func (m *HostMessage) ContentType() (string, bool) {
	return "", false
}

// SetContentType always fails; backends carry no content type.
func (m *HostMessage) SetContentType(string) error {
	return errors.Unsupported(errors.PhaseMessaging, "`content-type` not supported")
}

func (m *HostMessage) Data() []byte { return m.msg.Data }

func (m *HostMessage) SetData(b []byte) { m.msg.Data = b }

// ReplyTo returns the reply subject the sender attached
func (m *HostMessage) ReplyTo() (string, bool) {
	return m.msg.Reply, m.msg.Reply != ""
}

// Metadata returns the message headers, or false if it has none
func (m *HostMessage) Metadata() (Metadata, bool) {
	if m.msg.Header == nil {
		return nil, false
	}
	return metadataOf(m.msg.Header), true
}

func (m *HostMessage) AddMetadata(key, value string) {
	if m.msg.Header == nil {
		m.msg.Header = pubsub.Header{}
	}
	m.msg.Header.Add(key, value)
}

// SetMetadata replaces every header with md
func (m *HostMessage) SetMetadata(md Metadata) {
	m.msg.Header = md.header()
}

func (m *HostMessage) RemoveMetadata(key string) {
	if m.msg.Header != nil {
		m.msg.Header.Del(key)
	}
}

// GuestMessage is a message constructed by the guest
type GuestMessage struct {
	ContentType string
	Metadata    Metadata
	Data        []byte
}

// Origin tells where a Message came from
type Origin uint8

// The zero Message is an empty guest message.
const (
	OriginGuest Origin = iota
	OriginHost
	OriginRPC
)

func (o Origin) String() string {
	switch o {
	case OriginHost:
		return "host"
	case OriginRPC:
		return "wrpc"
	default:
		return "guest"
	}
}

// Message is one of a HostMessage, a BrokerMessage received over wRPC or a
// GuestMessage.
type Message struct {
	host   *HostMessage
	rpc    BrokerMessage
	guest  GuestMessage
	origin Origin
}

func FromHost(m *HostMessage) Message { return Message{origin: OriginHost, host: m} }

func FromRPC(m BrokerMessage) Message { return Message{origin: OriginRPC, rpc: m} }

func FromGuest(m GuestMessage) Message { return Message{origin: OriginGuest, guest: m} }

func (m Message) Origin() Origin { return m.origin }

// check rejects a host-origin message built from a nil HostMessage
func (m Message) check() error {
	if m.origin == OriginHost && m.host == nil {
		return errors.InvalidInput(errors.PhaseMessaging, "host message is nil")
	}
	return nil
}

// Host returns the wrapped host message, or nil
func (m Message) Host() *HostMessage { return m.host }

// RPC returns the wrapped wRPC message
func (m Message) RPC() (BrokerMessage, bool) { return m.rpc, m.origin == OriginRPC }

// Guest returns the wrapped guest message
func (m Message) Guest() (GuestMessage, bool) { return m.guest, m.origin == OriginGuest }

// Client is a connection handle returned by Connect
type Client struct {
	name string
}

// Name returns the link name the client was connected with
func (c *Client) Name() string {
	return c.name
}

// RequestOptions are the 0.3 request options. Any non-nil value is
// currently rejected.
type RequestOptions struct {
	TimeoutMs       uint32
	ExpectedReplies uint32
}
