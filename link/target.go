package link

// Target pins a call to a well-known interface whose instance name changed
// between protocol revisions. The zero value pins nothing.
type Target uint8

const (
	TargetNone Target = iota
	TargetBlobstoreBlobstore
	TargetBlobstoreContainer
	TargetKeyvalueAtomics
	TargetKeyvalueStore
	TargetKeyvalueBatch
	TargetHTTPIncomingHandler
	TargetHTTPOutgoingHandler
)

var targetNames = [...]string{
	TargetNone:                "",
	TargetBlobstoreBlobstore:  "blobstore/blobstore",
	TargetBlobstoreContainer:  "blobstore/container",
	TargetKeyvalueAtomics:     "keyvalue/atomics",
	TargetKeyvalueStore:       "keyvalue/store",
	TargetKeyvalueBatch:       "keyvalue/batch",
	TargetHTTPIncomingHandler: "http/incoming-handler",
	TargetHTTPOutgoingHandler: "http/outgoing-handler",
}

// Instance returns the interface the target resolves under.
// Both blobstore targets share the wasi:blobstore/blobstore instance.
func (t Target) Instance() string {
	switch t {
	case TargetBlobstoreBlobstore, TargetBlobstoreContainer:
		return "wasi:blobstore/blobstore"
	case TargetKeyvalueAtomics:
		return "wasi:keyvalue/atomics"
	case TargetKeyvalueStore:
		return "wasi:keyvalue/store"
	case TargetKeyvalueBatch:
		return "wasi:keyvalue/batch"
	case TargetHTTPIncomingHandler:
		return "wasi:http/incoming-handler"
	case TargetHTTPOutgoingHandler:
		return "wasi:http/outgoing-handler"
	default:
		return ""
	}
}

func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return "unknown"
}

// ParseTarget maps a short name such as "keyvalue/store" to its Target.
func ParseTarget(s string) (Target, bool) {
	for i, name := range targetNames {
		if i != 0 && name == s {
			return Target(i), true
		}
	}
	return TargetNone, false
}

// Derive returns the lookup instance for a call: the pinned target when set,
// otherwise the instance with its version stripped.
func Derive(target Target, instance string) string {
	if target != TargetNone {
		return target.Instance()
	}
	return Canonical(instance)
}
