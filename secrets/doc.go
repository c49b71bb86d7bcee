// Package secrets holds the secrets delivered to a component at startup.
//
// Values are only reachable in two steps: Get confirms a secret exists and
// returns an opaque Handle, then Reveal exchanges the handle for the value.
// A name unknown to Get is a normal NotFound outcome. A handle whose secret
// disappears before Reveal is an invariant violation and fails hard.
//
// Stored secrets redact themselves when formatted or logged.
package secrets
