// Package wrpc encodes and decodes component values in the byte format used
// by wRPC invocations.
//
// Values are described by go.bytecodealliance.org/wit types and use the same
// Go shapes as the rest of the host:
//
//	bool, uintN, intN, floatN      scalar types
//	rune                           char
//	string                         string
//	[]byte                         list<u8>
//	[]any or any slice             list<T>, tuple
//	map[string]any                 record fields by name
//	nil or the payload             option<T>
//	map[string]any{"ok"|"err": v}  result<T, E>
//	map[string]any{case: payload}  variant
//	uint32 or case name            enum (decodes to uint32)
//	uint64                         flags bitmask
//
// Integers are LEB128 encoded, strings and lists carry a LEB128 length prefix,
// and option, result, variant and enum values start with their discriminant.
//
//	msgType := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
//		{Name: "subject", Type: wit.String{}},
//		{Name: "body", Type: &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}},
//	}}}
//	data, err := wrpc.Encode(msgType, map[string]any{"subject": "a", "body": []byte("b")})
package wrpc
