package wrpc

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasmbus/errors"
)

// MaxListLength bounds list and string lengths accepted by the codec
const MaxListLength = 1 << 28

// Encoder appends encoded values to a buffer
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder creates an empty encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes so far
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Reset discards the encoded bytes
func (e *Encoder) Reset() {
	e.buf.Reset()
}

// Encode encodes a single value of type t
func Encode(t wit.Type, value any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(t, value); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeParams encodes values in order, one per type
func EncodeParams(types []wit.Type, values []any) ([]byte, error) {
	if len(types) != len(values) {
		return nil, errors.InvalidInput(errors.PhaseCodec, "parameter count does not match type count")
	}
	e := NewEncoder()
	for i, t := range types {
		if err := e.Encode(t, values[i]); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

// Encode appends value as type t
func (e *Encoder) Encode(t wit.Type, value any) error {
	switch t := t.(type) {
	case wit.Bool:
		b, ok := value.(bool)
		if !ok {
			return mismatch(value, "bool")
		}
		if b {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
		return nil
	case wit.U8:
		v, err := toUint(value, math.MaxUint8)
		if err != nil {
			return err
		}
		e.buf.WriteByte(byte(v))
		return nil
	case wit.S8:
		v, err := toInt(value, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		e.buf.WriteByte(byte(int8(v)))
		return nil
	case wit.U16:
		return e.uint(value, math.MaxUint16)
	case wit.U32:
		return e.uint(value, math.MaxUint32)
	case wit.U64:
		return e.uint(value, math.MaxUint64)
	case wit.S16:
		return e.int(value, math.MinInt16, math.MaxInt16)
	case wit.S32:
		return e.int(value, math.MinInt32, math.MaxInt32)
	case wit.S64:
		return e.int(value, math.MinInt64, math.MaxInt64)
	case wit.F32:
		f, ok := value.(float32)
		if !ok {
			return mismatch(value, "float32")
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		e.buf.Write(b[:])
		return nil
	case wit.F64:
		f, ok := value.(float64)
		if !ok {
			return mismatch(value, "float64")
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		e.buf.Write(b[:])
		return nil
	case wit.Char:
		r, ok := value.(rune)
		if !ok || !utf8.ValidRune(r) {
			return mismatch(value, "rune")
		}
		e.buf.WriteRune(r)
		return nil
	case wit.String:
		s, ok := value.(string)
		if !ok {
			return mismatch(value, "string")
		}
		if !utf8.ValidString(s) {
			return errors.InvalidInput(errors.PhaseCodec, "string is not valid UTF-8")
		}
		WriteU64(&e.buf, uint64(len(s)))
		e.buf.WriteString(s)
		return nil
	case *wit.TypeDef:
		return e.typeDef(t, value)
	default:
		return errors.Unsupported(errors.PhaseCodec, "type "+typeName(t))
	}
}

func (e *Encoder) uint(value any, max uint64) error {
	v, err := toUint(value, max)
	if err != nil {
		return err
	}
	WriteU64(&e.buf, v)
	return nil
}

func (e *Encoder) int(value any, min, max int64) error {
	v, err := toInt(value, min, max)
	if err != nil {
		return err
	}
	WriteS64(&e.buf, v)
	return nil
}

func (e *Encoder) typeDef(t *wit.TypeDef, value any) error {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		return e.record(kind, value)
	case *wit.List:
		return e.list(kind, value)
	case *wit.Option:
		if value == nil {
			e.buf.WriteByte(0)
			return nil
		}
		e.buf.WriteByte(1)
		return e.Encode(kind.Type, value)
	case *wit.Tuple:
		return e.tuple(kind, value)
	case *wit.Result:
		return e.result(kind, value)
	case *wit.Variant:
		return e.variant(kind, value)
	case *wit.Enum:
		return e.enum(kind, value)
	case *wit.Flags:
		bits, ok := value.(uint64)
		if !ok {
			return mismatch(value, "uint64")
		}
		n := (len(kind.Flags) + 7) / 8
		for i := 0; i < n; i++ {
			e.buf.WriteByte(byte(bits >> (8 * i)))
		}
		return nil
	case wit.Type:
		return e.Encode(kind, value)
	default:
		return errors.Unsupported(errors.PhaseCodec, "type definition kind")
	}
}

func (e *Encoder) record(r *wit.Record, value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return mismatch(value, "map[string]any")
	}
	for _, field := range r.Fields {
		v, exists := m[field.Name]
		if !exists {
			if _, isOpt := optionOf(field.Type); !isOpt {
				return errors.New(errors.PhaseCodec, errors.KindInvalidInput).
					Value(field.Name).
					Detail("record field %q is missing", field.Name).
					Build()
			}
		}
		if err := e.Encode(field.Type, v); err != nil {
			return errors.Wrap(errors.PhaseCodec, errors.KindInvalidInput, err, "field "+field.Name)
		}
	}
	return nil
}

func (e *Encoder) list(l *wit.List, value any) error {
	if _, isU8 := l.Type.(wit.U8); isU8 {
		switch b := value.(type) {
		case []byte:
			WriteU64(&e.buf, uint64(len(b)))
			e.buf.Write(b)
			return nil
		case string:
			WriteU64(&e.buf, uint64(len(b)))
			e.buf.WriteString(b)
			return nil
		}
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return mismatch(value, "slice")
	}
	n := rv.Len()
	if n > MaxListLength {
		return errors.InvalidInput(errors.PhaseCodec, "list too long")
	}
	WriteU64(&e.buf, uint64(n))
	for i := 0; i < n; i++ {
		if err := e.Encode(l.Type, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) tuple(t *wit.Tuple, value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return mismatch(value, "slice")
	}
	if rv.Len() != len(t.Types) {
		return errors.InvalidInput(errors.PhaseCodec, "tuple arity mismatch")
	}
	for i, et := range t.Types {
		if err := e.Encode(et, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) result(r *wit.Result, value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return mismatch(value, "map[string]any")
	}
	if v, ok := m["ok"]; ok {
		e.buf.WriteByte(0)
		if r.OK != nil {
			return e.Encode(r.OK, v)
		}
		return nil
	}
	if v, ok := m["err"]; ok {
		e.buf.WriteByte(1)
		if r.Err != nil {
			return e.Encode(r.Err, v)
		}
		return nil
	}
	return errors.InvalidInput(errors.PhaseCodec, "result must have either 'ok' or 'err' key")
}

func (e *Encoder) variant(v *wit.Variant, value any) error {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return mismatch(value, "single-entry map[string]any")
	}
	for i, c := range v.Cases {
		payload, found := m[c.Name]
		if !found {
			continue
		}
		WriteU64(&e.buf, uint64(i))
		if c.Type != nil {
			return e.Encode(c.Type, payload)
		}
		return nil
	}
	return errors.InvalidInput(errors.PhaseCodec, "variant value must contain one of the case names")
}

func (e *Encoder) enum(en *wit.Enum, value any) error {
	switch v := value.(type) {
	case string:
		for i, c := range en.Cases {
			if c.Name == v {
				WriteU64(&e.buf, uint64(i))
				return nil
			}
		}
		return errors.InvalidInput(errors.PhaseCodec, "unknown enum case "+v)
	default:
		disc, err := toUint(value, uint64(len(en.Cases)-1))
		if err != nil {
			return err
		}
		WriteU64(&e.buf, disc)
		return nil
	}
}

func optionOf(t wit.Type) (*wit.Option, bool) {
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return nil, false
	}
	o, ok := td.Kind.(*wit.Option)
	return o, ok
}

func toUint(value any, max uint64) (uint64, error) {
	var v uint64
	switch n := value.(type) {
	case uint8:
		v = uint64(n)
	case uint16:
		v = uint64(n)
	case uint32:
		v = uint64(n)
	case uint64:
		v = n
	case uint:
		v = uint64(n)
	case int:
		if n < 0 {
			return 0, outOfRange(value)
		}
		v = uint64(n)
	case int64:
		if n < 0 {
			return 0, outOfRange(value)
		}
		v = uint64(n)
	case int32:
		if n < 0 {
			return 0, outOfRange(value)
		}
		v = uint64(n)
	default:
		return 0, mismatch(value, "unsigned integer")
	}
	if v > max {
		return 0, outOfRange(value)
	}
	return v, nil
}

func toInt(value any, min, max int64) (int64, error) {
	var v int64
	switch n := value.(type) {
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case int:
		v = int64(n)
	default:
		return 0, mismatch(value, "signed integer")
	}
	if v < min || v > max {
		return 0, outOfRange(value)
	}
	return v, nil
}

func mismatch(value any, want string) error {
	return errors.New(errors.PhaseCodec, errors.KindInvalidInput).
		Value(value).
		Detail("cannot encode %s as %s", typeName(value), want).
		Build()
}

func outOfRange(value any) error {
	return errors.New(errors.PhaseCodec, errors.KindInvalidInput).
		Value(value).
		Detail("value %v out of range", value).
		Build()
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
