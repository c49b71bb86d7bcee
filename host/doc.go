// Package host implements the per-component invocation context of a wasmbus
// host.
//
// A Handler is created for every running component. It carries the shared
// process-wide tables (link graph, component registry, secrets, config,
// messaging connections) plus one table of its own: the Target Table that
// records which link name the component has selected for each interface.
//
// # Invocation
//
// Invoke resolves the destination for an outbound call and dispatches it:
//
//   - When the destination is a component in the Registry, the call runs in
//     process. Parameters are written to a single-slot pipe, the target is
//     instantiated with a fresh copy of its own handler and called on a
//     separate goroutine. Its results flow back through a second pipe.
//   - Otherwise the call goes to "<lattice>.<destination>" through the
//     transport.Dialer, with trace context, source-id and link-name headers
//     and the invocation timeout applied.
//
// Both paths return the same stream.Outgoing and stream.Incoming types.
//
// # Link selection
//
// SelectLink changes the active link name unconditionally. SetLinkName first
// checks that the link graph wires every interface under the new name and
// leaves the table unchanged if any is missing.
//
// # Copying
//
// CopyForNew returns a handler for a new instance: every shared handle is
// kept and the Target Table starts empty.
package host
