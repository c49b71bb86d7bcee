// Package errors provides structured error types for the wasmbus host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the link name, interface and component involved so that
// resolution failures can guide operators towards the configuration to fix.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindNotLinked).
//		Link("default").
//		Interface("wasi:keyvalue/store").
//		Component("http-hello").
//		Detail("no destination").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.LinkNotFound("default", "wasi:keyvalue/store", "http-hello")
//	err := errors.Unsupported(errors.PhaseMessaging, "headers not currently supported by wRPC targets")
//
// Classify maps transport failures onto the two invocation error kinds the host
// reports: NotFound for disconnected peers and Trap for everything else.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
