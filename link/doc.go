// Package link resolves outbound interface references to lattice destinations.
//
// Two tables drive resolution:
//
//   - Targets is per handler instance and records which link name is active
//     for each interface. Absent entries mean the "default" link.
//   - Graph is shared across the process and maps a link name to the
//     destination configured for every interface under that link.
//
// Resolve reads both tables under their own locks. A reconfiguration that
// lands between the two reads may or may not be observed by the call.
//
//	targets := link.NewTargets()
//	graph := link.NewGraph()
//	graph.Put("default", "wasi:keyvalue/store", "kv-redis")
//
//	res, err := link.Resolve(targets, graph, "wasi:keyvalue/store@0.2.0", "http-hello")
//	// res.Destination == "kv-redis"
package link
