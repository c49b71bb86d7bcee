package link

import "github.com/wippyai/wasmbus/errors"

// Resolution is the outcome of resolving an instance for a component
type Resolution struct {
	Instance    string
	LinkName    string
	Destination string
}

// Resolve finds the destination for instance as seen by componentID.
//
// The active link name comes from targets, then the destination from graph.
// Each table is read under its own lock; the two reads are not atomic
// with respect to each other.
func Resolve(targets *Targets, graph *Graph, instance, componentID string) (Resolution, error) {
	instance = Canonical(instance)
	name := targets.Get(instance)

	dest, hasLink, ok := graph.Lookup(name, instance)
	if !hasLink {
		return Resolution{}, errors.LinkNotFound(name, instance, componentID)
	}
	if !ok {
		return Resolution{}, errors.NotLinked(name, instance, componentID)
	}
	return Resolution{Instance: instance, LinkName: name, Destination: dest}, nil
}

// SelectValidated makes name active for ifaces only if graph already wires
// every one of them under name. On failure the table is left untouched and
// the error names the first interface without a link.
func SelectValidated(targets *Targets, graph *Graph, name string, ifaces ...Interface) error {
	for _, iface := range ifaces {
		if !graph.Has(name, iface.Instance()) {
			return errors.MissingLink(name, iface.Instance())
		}
	}
	targets.Select(name, ifaces...)
	return nil
}
