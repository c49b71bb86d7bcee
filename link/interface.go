package link

import (
	"strings"

	"github.com/wippyai/wasmbus/errors"
)

// DefaultName is the link name used when no explicit selection exists.
const DefaultName = "default"

// Version is the semantic version attached to an interface reference
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "0.2.0" or "0.2"
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	var v Version
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	for i, p := range parts {
		if p == "" {
			return Version{}, false
		}
		var n uint32
		for _, c := range p {
			if c < '0' || c > '9' {
				return Version{}, false
			}
			if n > 429496729 || (n == 429496729 && c > '5') {
				return Version{}, false
			}
			n = n*10 + uint32(c-'0')
		}
		switch i {
		case 0:
			v.Major = n
		case 1:
			v.Minor = n
		case 2:
			v.Patch = n
		}
	}
	return v, true
}

// String returns the version as "major.minor.patch"
func (v Version) String() string {
	var b strings.Builder
	writeUint(&b, v.Major)
	b.WriteByte('.')
	writeUint(&b, v.Minor)
	b.WriteByte('.')
	writeUint(&b, v.Patch)
	return b.String()
}

func writeUint(b *strings.Builder, n uint32) {
	if n == 0 {
		b.WriteByte('0')
		return
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	b.Write(buf[i:])
}

// Interface identifies an imported capability surface: namespace:package/name.
type Interface struct {
	Version   *Version
	Namespace string
	Package   string
	Name      string
}

// Instance returns the canonical, unversioned lookup key "namespace:package/name".
func (i Interface) Instance() string {
	return i.Namespace + ":" + i.Package + "/" + i.Name
}

// String returns the instance name including the version when one is set.
func (i Interface) String() string {
	if i.Version == nil {
		return i.Instance()
	}
	return i.Instance() + "@" + i.Version.String()
}

// ParseInterface parses "namespace:package/name" with an optional "@version" suffix.
func ParseInterface(s string) (Interface, error) {
	name, ver, hasVer := strings.Cut(s, "@")

	ns, rest, ok := strings.Cut(name, ":")
	if !ok || ns == "" {
		return Interface{}, errors.InvalidInput(errors.PhaseResolve, "interface `"+s+"` is missing a namespace")
	}
	pkg, iface, ok := strings.Cut(rest, "/")
	if !ok || pkg == "" || iface == "" || strings.ContainsAny(iface, ":/") {
		return Interface{}, errors.InvalidInput(errors.PhaseResolve, "interface `"+s+"` must have the form namespace:package/interface")
	}

	out := Interface{Namespace: ns, Package: pkg, Name: iface}
	if hasVer {
		v, ok := ParseVersion(ver)
		if !ok {
			return Interface{}, errors.InvalidInput(errors.PhaseResolve, "interface `"+s+"` has an invalid version")
		}
		out.Version = &v
	}
	return out, nil
}

// Canonical strips any "@version" suffix from an instance name.
func Canonical(instance string) string {
	name, _, _ := strings.Cut(instance, "@")
	return name
}
