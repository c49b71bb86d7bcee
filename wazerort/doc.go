// Package wazerort runs core WebAssembly modules as host components on
// wazero.
//
// A module is called through a byte ABI. It exports its linear memory as
// "memory", an allocator "alloc(size i32) -> i32" and one function per
// operation named "<instance>#<function>", for example
// "wasi:keyvalue/store@0.2.0#get". The instance may also be given without
// its version. Each operation takes the pointer and length of the encoded
// parameters and returns the results packed as (ptr << 32 | len).
//
// Modules may import these functions from the "wasmbus" module:
//
//	log(level, context_ptr, context_len, message_ptr, message_len)
//	config_get(key_ptr, key_len) -> i64
//
// log levels are trace (0) to critical (5). config_get returns the value
// packed like a result; a missing key reads as empty.
//
// Components satisfy host.Component, so they can be placed in a
// host.Registry and reached through local invocations.
package wazerort
