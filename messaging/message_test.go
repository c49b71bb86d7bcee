package messaging

import (
	"testing"

	"github.com/wippyai/wasmbus/errors"
	"github.com/wippyai/wasmbus/pubsub"
)

func TestHostMessage(t *testing.T) {
	m := NewHostMessage(&pubsub.Message{Subject: "orders", Reply: "_INBOX.1", Data: []byte("a")})

	if topic, ok := m.Topic(); !ok || topic != "orders" {
		t.Errorf("Topic() = %q, %v", topic, ok)
	}
	if _, ok := m.ContentType(); ok {
		t.Error("host messages have no content type")
	}
	if err := m.SetContentType("text/plain"); !errors.HasKind(err, errors.KindUnsupported) {
		t.Errorf("SetContentType err = %v, want unsupported", err)
	}
	if reply, ok := m.ReplyTo(); !ok || reply != "_INBOX.1" {
		t.Errorf("ReplyTo() = %q, %v", reply, ok)
	}

	m.SetData([]byte("b"))
	if string(m.Data()) != "b" {
		t.Errorf("Data() = %q, want b", m.Data())
	}

	if _, ok := m.Metadata(); ok {
		t.Error("Metadata() should report none before any header is set")
	}
	m.AddMetadata("k", "1")
	m.AddMetadata("k", "2")
	m.AddMetadata("j", "x")
	md, ok := m.Metadata()
	if !ok || len(md) != 3 {
		t.Fatalf("Metadata() = %v, %v", md, ok)
	}
	want := Metadata{{"j", "x"}, {"k", "1"}, {"k", "2"}}
	for i := range want {
		if md[i] != want[i] {
			t.Errorf("Metadata()[%d] = %v, want %v", i, md[i], want[i])
		}
	}

	m.RemoveMetadata("k")
	if md, _ := m.Metadata(); len(md) != 1 || md[0].Key != "j" {
		t.Errorf("after remove Metadata() = %v", md)
	}

	m.SetMetadata(Metadata{{"z", "26"}})
	if md, _ := m.Metadata(); len(md) != 1 || md[0] != (KeyValue{"z", "26"}) {
		t.Errorf("after set Metadata() = %v", md)
	}
}

func TestHostMessageCopiesBackendMessage(t *testing.T) {
	src := &pubsub.Message{Subject: "a", Data: []byte("x")}
	m := NewHostMessage(src)
	m.SetData([]byte("y"))
	if string(src.Data) != "x" {
		t.Error("mutating the host message should not touch the backend message")
	}
}

func TestMessageOrigin(t *testing.T) {
	tests := []struct {
		msg  Message
		want Origin
		name string
	}{
		{FromHost(NewHostMessage(&pubsub.Message{})), OriginHost, "host"},
		{FromRPC(BrokerMessage{Subject: "s"}), OriginRPC, "wrpc"},
		{FromGuest(GuestMessage{Data: []byte("d")}), OriginGuest, "guest"},
		{Message{}, OriginGuest, "guest"},
	}
	for _, tt := range tests {
		if got := tt.msg.Origin(); got != tt.want {
			t.Errorf("Origin() = %v, want %v", got, tt.want)
		}
		if got := tt.msg.Origin().String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
	}

	if _, ok := FromRPC(BrokerMessage{}).RPC(); !ok {
		t.Error("RPC() should report an RPC message")
	}
	if _, ok := FromRPC(BrokerMessage{}).Guest(); ok {
		t.Error("Guest() should not report an RPC message")
	}
	if FromGuest(GuestMessage{}).Host() != nil {
		t.Error("Host() should be nil for a guest message")
	}
}

func TestBrokerMessageValue(t *testing.T) {
	v := BrokerMessage{Subject: "s", Body: []byte("b")}.value()
	if _, ok := v["reply-to"]; ok {
		t.Error("empty ReplyTo should be omitted")
	}
	got, err := brokerMessageFrom(BrokerMessage{Subject: "s", Body: []byte("b"), ReplyTo: "r"}.value())
	if err != nil {
		t.Fatalf("brokerMessageFrom: %v", err)
	}
	if got.Subject != "s" || string(got.Body) != "b" || got.ReplyTo != "r" {
		t.Errorf("brokerMessageFrom = %+v", got)
	}
	if _, err := brokerMessageFrom("nope"); err == nil {
		t.Error("brokerMessageFrom should reject a non-record")
	}
}
