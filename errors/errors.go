package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in an invocation the error occurred
type Phase string

const (
	PhaseResolve   Phase = "resolve"   // link target resolution
	PhaseLink      Phase = "link"      // link name selection
	PhaseDispatch  Phase = "dispatch"  // local/remote invocation dispatch
	PhaseTransport Phase = "transport" // remote transport session
	PhaseStream    Phase = "stream"    // in-process pipe plumbing
	PhaseMessaging Phase = "messaging" // pub/sub facade
	PhaseSecrets   Phase = "secrets"   // secrets cache
	PhaseConfig    Phase = "config"    // config bundle access
	PhaseLoad      Phase = "load"      // host file and component loading
	PhaseCodec     Phase = "codec"     // wRPC value encoding
	PhaseRuntime   Phase = "runtime"   // guest execution
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindLinkNotFound Kind = "link_not_found"
	KindNotLinked    Kind = "not_linked"
	KindInvalidInput Kind = "invalid_input"
	KindUnsupported  Kind = "unsupported"
	KindMismatch     Kind = "mismatch"
	KindNoResponse   Kind = "no_response"
	KindTimeout      Kind = "timeout"
	KindClosed       Kind = "closed"
	KindFull         Kind = "full"
	KindInvariant    Kind = "invariant"
	KindTransport    Kind = "transport"
	KindTrap         Kind = "trap"
)

// Error is the structured error type used throughout the host
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Link      string
	Interface string
	Component string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HasKind reports whether any *Error in err's tree has the given kind.
// Joined errors (errors.Join, multierr) are searched branch by branch.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range u.Unwrap() {
				if HasKind(branch, kind) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Link sets the link name involved
func (b *Builder) Link(name string) *Builder {
	b.err.Link = name
	return b
}

// Interface sets the interface (instance) name involved
func (b *Builder) Interface(name string) *Builder {
	b.err.Interface = name
	return b
}

// Component sets the component id involved
func (b *Builder) Component(id string) *Builder {
	b.err.Component = id
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Resolution errors

// LinkNotFound creates an error for a link name with no entry in the link graph
func LinkNotFound(link, instance, component string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindLinkNotFound,
		Link:      link,
		Interface: instance,
		Component: component,
		Detail:    fmt.Sprintf("link `%s` not found for instance `%s`", link, instance),
	}
}

// NotLinked creates an error for a link that has no destination for the interface
func NotLinked(link, instance, component string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindNotLinked,
		Link:      link,
		Interface: instance,
		Component: component,
		Detail: fmt.Sprintf("component `%s` is not linked to a lattice target for instance `%s` (link `%s`)",
			component, instance, link),
	}
}

// MissingLink creates a link selection error for an interface without an entry under the link name
func MissingLink(link, instance string) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindLinkNotFound,
		Link:      link,
		Interface: instance,
		Detail:    fmt.Sprintf("interface `%s` does not have an existing link with name `%s`", instance, link),
	}
}

// Capability errors

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Mismatch creates an error for two values that were required to agree
func Mismatch(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMismatch,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// NoResponse creates an error for an operation that succeeded without a response to return
func NoResponse(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoResponse,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Transport errors

// Timeout creates a deadline exceeded error
func Timeout(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: detail,
		Cause:  cause,
	}
}

// Closed creates an error for an operation on a closed or disconnected peer
func Closed(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: detail,
	}
}

// Invariant creates an error for a state that should be unreachable
func Invariant(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvariant,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
