// Package wasmbus provides the per-component invocation context of a
// lattice host for WebAssembly components.
//
// Every component instance runs with a Handler that knows which link name is
// active for each interface it imports, where that link points, and how to
// reach the destination: in-process when the destination component is loaded
// locally, over the lattice transport otherwise. The Handler also carries the
// component's runtime config, its secrets and its messaging connections.
//
// # Architecture Overview
//
//	wasmbus/
//	├── link/             Interface names, link graph, target table and resolution
//	├── host/             Handler, component registry and invocation dispatch
//	├── stream/           Single-slot in-process pipes and outgoing/incoming streams
//	├── transport/        Remote invocation contract and trace propagation
//	│   └── natsrpc/      NATS request transport for remote invocations
//	├── wrpc/             wit.Type driven value codec
//	├── messaging/        Messaging facade (0.2 and 0.3) with RPC fallback
//	├── pubsub/           Pub/sub backend contract and per-link connection pool
//	│   ├── natsps/       NATS backend
//	│   └── redisps/      Redis backend
//	├── secrets/          Secret handle cache with redacted values
//	├── config/           Swappable runtime config bundle
//	├── wazerort/         Core wasm components on wazero
//	├── errors/           Structured error types and invocation error classification
//	└── cmd/wasmbus/      Operator CLI
//
// # Quick Start
//
// Wire a handler and invoke an interface:
//
//	graph := link.NewGraph()
//	graph.Put(link.DefaultName, "wasi:keyvalue/store", "kv-redis")
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	h := host.NewHandler(host.Options{
//	    ComponentID: "http-hello",
//	    Links:       graph,
//	    Dialer:      natsrpc.NewDialer(nc),
//	})
//
//	out, in, err := h.Invoke(ctx, link.TargetNone, "wasi:keyvalue/store@0.2.0", "get", params)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out.Close()
//	results, err := io.ReadAll(in)
//
// # Link Resolution
//
// A call to an instance resolves in two steps. The component's Target Table
// maps the instance to the active link name ("default" unless selected),
// then the shared link graph maps the link name and instance to a
// destination id. Link names are selected per interface with
// Handler.SelectLink or, validated against the graph, Handler.SetLinkName.
//
// # Thread Safety
//
// Handler, Registry, link.Graph, secrets.Cache, config.Store and pubsub.Pool
// are safe for concurrent use. Streams returned by Invoke belong to a single
// caller.
package wasmbus
