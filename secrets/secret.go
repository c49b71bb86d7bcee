package secrets

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// ValueKind distinguishes the two secret value variants
type ValueKind uint8

const (
	ValueString ValueKind = iota
	ValueBytes
)

func (k ValueKind) String() string {
	if k == ValueBytes {
		return "bytes"
	}
	return "string"
}

// Value is a revealed secret: either a string or raw bytes.
type Value struct {
	s    string
	b    []byte
	kind ValueKind
}

// NewString creates a string secret value
func NewString(s string) Value {
	return Value{kind: ValueString, s: s}
}

// NewBytes creates a bytes secret value. The slice is copied.
func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: ValueBytes, b: cp}
}

// Kind returns the variant held
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == ValueString
}

// AsBytes returns a copy of the bytes variant
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != ValueBytes {
		return nil, false
	}
	cp := make([]byte, len(v.b))
	copy(cp, v.b)
	return cp, true
}

// Secret wraps a Value so that printing or logging it never shows the content.
type Secret struct {
	v Value
}

// Wrap seals v
func Wrap(v Value) Secret {
	return Secret{v: v}
}

// Expose returns the wrapped value
func (s Secret) Expose() Value { return s.v }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return "secrets.Secret{" + redacted + "}" }

// Format redacts under every verb, including %v with flags and %#v.
func (s Secret) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = f.Write([]byte(s.GoString()))
		return
	}
	_, _ = f.Write([]byte(redacted))
}

// MarshalLogObject implements zapcore.ObjectMarshaler, emitting only the variant.
func (s Secret) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", s.v.kind.String())
	enc.AddString("value", redacted)
	return nil
}
