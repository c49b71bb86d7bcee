package wrpc

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasmbus/errors"
)

// Decoder reads encoded values from a byte slice
type Decoder struct {
	r *bytes.Reader
}

// NewDecoder creates a decoder over data
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: bytes.NewReader(data)}
}

// Remaining returns the number of unread bytes
func (d *Decoder) Remaining() int {
	return d.r.Len()
}

// Decode decodes exactly one value of type t from data
func Decode(t wit.Type, data []byte) (any, error) {
	d := NewDecoder(data)
	v, err := d.Decode(t)
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, errors.InvalidInput(errors.PhaseCodec, "trailing bytes after value")
	}
	return v, nil
}

// DecodeResults decodes one value per type from data
func DecodeResults(types []wit.Type, data []byte) ([]any, error) {
	d := NewDecoder(data)
	out := make([]any, 0, len(types))
	for _, t := range types {
		v, err := d.Decode(t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if d.Remaining() != 0 {
		return nil, errors.InvalidInput(errors.PhaseCodec, "trailing bytes after results")
	}
	return out, nil
}

// Decode reads the next value of type t
func (d *Decoder) Decode(t wit.Type) (any, error) {
	switch t := t.(type) {
	case wit.Bool:
		b, err := d.byte()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, errors.InvalidInput(errors.PhaseCodec, "invalid bool")
		}
		return b == 1, nil
	case wit.U8:
		b, err := d.byte()
		return b, err
	case wit.S8:
		b, err := d.byte()
		return int8(b), err
	case wit.U16:
		v, err := d.uint(math.MaxUint16)
		return uint16(v), err
	case wit.U32:
		v, err := d.uint(math.MaxUint32)
		return uint32(v), err
	case wit.U64:
		return d.uint(math.MaxUint64)
	case wit.S16:
		v, err := d.int(math.MinInt16, math.MaxInt16)
		return int16(v), err
	case wit.S32:
		v, err := d.int(math.MinInt32, math.MaxInt32)
		return int32(v), err
	case wit.S64:
		return d.int(math.MinInt64, math.MaxInt64)
	case wit.F32:
		var b [4]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return nil, truncated(err)
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
	case wit.F64:
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return nil, truncated(err)
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
	case wit.Char:
		r, size, err := d.r.ReadRune()
		if err != nil {
			return nil, truncated(err)
		}
		if r == utf8.RuneError && size == 1 {
			return nil, errors.InvalidInput(errors.PhaseCodec, "invalid char")
		}
		return r, nil
	case wit.String:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, errors.InvalidInput(errors.PhaseCodec, "string is not valid UTF-8")
		}
		return string(b), nil
	case *wit.TypeDef:
		return d.typeDef(t)
	default:
		return nil, errors.Unsupported(errors.PhaseCodec, "type "+typeName(t))
	}
}

func (d *Decoder) typeDef(t *wit.TypeDef) (any, error) {
	switch kind := t.Kind.(type) {
	case *wit.Record:
		out := make(map[string]any, len(kind.Fields))
		for _, field := range kind.Fields {
			v, err := d.Decode(field.Type)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseCodec, errors.KindInvalidInput, err, "field "+field.Name)
			}
			out[field.Name] = v
		}
		return out, nil
	case *wit.List:
		if _, isU8 := kind.Type.(wit.U8); isU8 {
			return d.bytes()
		}
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			v, err := d.Decode(kind.Type)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *wit.Option:
		tag, err := d.byte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0:
			return nil, nil
		case 1:
			return d.Decode(kind.Type)
		default:
			return nil, invalidDiscriminant(uint64(tag), 1)
		}
	case *wit.Tuple:
		out := make([]any, len(kind.Types))
		for i, et := range kind.Types {
			v, err := d.Decode(et)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *wit.Result:
		tag, err := d.byte()
		if err != nil {
			return nil, err
		}
		key, payload := "ok", kind.OK
		switch tag {
		case 0:
		case 1:
			key, payload = "err", kind.Err
		default:
			return nil, invalidDiscriminant(uint64(tag), 1)
		}
		var v any
		if payload != nil {
			if v, err = d.Decode(payload); err != nil {
				return nil, err
			}
		}
		return map[string]any{key: v}, nil
	case *wit.Variant:
		disc, err := ReadU64(d.r)
		if err != nil {
			return nil, truncated(err)
		}
		if disc >= uint64(len(kind.Cases)) {
			return nil, invalidDiscriminant(disc, uint64(len(kind.Cases)-1))
		}
		c := kind.Cases[disc]
		var v any
		if c.Type != nil {
			if v, err = d.Decode(c.Type); err != nil {
				return nil, err
			}
		}
		return map[string]any{c.Name: v}, nil
	case *wit.Enum:
		disc, err := ReadU64(d.r)
		if err != nil {
			return nil, truncated(err)
		}
		if disc >= uint64(len(kind.Cases)) {
			return nil, invalidDiscriminant(disc, uint64(len(kind.Cases)-1))
		}
		return uint32(disc), nil
	case *wit.Flags:
		n := (len(kind.Flags) + 7) / 8
		var bits uint64
		for i := 0; i < n; i++ {
			b, err := d.byte()
			if err != nil {
				return nil, err
			}
			bits |= uint64(b) << (8 * i)
		}
		return bits, nil
	case wit.Type:
		return d.Decode(kind)
	default:
		return nil, errors.Unsupported(errors.PhaseCodec, "type definition kind")
	}
}

func (d *Decoder) byte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

func (d *Decoder) uint(max uint64) (uint64, error) {
	v, err := ReadU64(d.r)
	if err != nil {
		return 0, truncated(err)
	}
	if v > max {
		return 0, errors.InvalidInput(errors.PhaseCodec, "integer out of range")
	}
	return v, nil
}

func (d *Decoder) int(min, max int64) (int64, error) {
	v, err := ReadS64(d.r)
	if err != nil {
		return 0, truncated(err)
	}
	if v < min || v > max {
		return 0, errors.InvalidInput(errors.PhaseCodec, "integer out of range")
	}
	return v, nil
}

func (d *Decoder) length() (int, error) {
	n, err := ReadU64(d.r)
	if err != nil {
		return 0, truncated(err)
	}
	if n > MaxListLength {
		return 0, errors.InvalidInput(errors.PhaseCodec, "length exceeds maximum")
	}
	return int(n), nil
}

func (d *Decoder) bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	if n > d.r.Len() {
		return nil, truncated(io.ErrUnexpectedEOF)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, truncated(err)
	}
	return b, nil
}

func truncated(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return errors.Wrap(errors.PhaseCodec, errors.KindInvalidInput, err, "truncated value")
}

func invalidDiscriminant(got, max uint64) error {
	return errors.New(errors.PhaseCodec, errors.KindInvalidInput).
		Value(got).
		Detail("invalid discriminant %d, max %d", got, max).
		Build()
}
