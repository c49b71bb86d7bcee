// Package messaging implements the guest messaging capability on top of a
// host.Handler.
//
// Two generations of the interface are served by one Facade:
//
//   - 0.2: RequestV2 and PublishV2 exchange BrokerMessage values.
//   - 0.3: Connect returns a Client bound to a link name; Send, Request and
//     Reply accept a Message whose origin is the host, a wRPC call or the
//     guest itself.
//
// Every operation looks up the link name selected for the matching
// wasmcloud:messaging interface. When the handler's pubsub.Pool holds a
// connection under that name the backend is used directly. Otherwise the
// call falls back to invoking wasmcloud:messaging/consumer@0.2.0 through
// the handler, which cannot carry headers, metadata or responses.
//
// Provider serves that consumer interface over natsrpc and forwards the
// calls to a pubsub.Conn.
package messaging
