package errors

import (
	stderrors "errors"
	"syscall"
)

// InvocationErrorKind is the coarse classification reported to the host's
// invocation error path.
type InvocationErrorKind uint8

const (
	// InvocationErrorTrap is an unexpected runtime fault.
	InvocationErrorTrap InvocationErrorKind = iota
	// InvocationErrorNotFound means the destination is unreachable or unknown.
	InvocationErrorNotFound
)

func (k InvocationErrorKind) String() string {
	switch k {
	case InvocationErrorNotFound:
		return "not-found"
	default:
		return "trap"
	}
}

// Classify maps a transport failure to an InvocationErrorKind.
// A "not connected" condition anywhere in the chain is NotFound; everything
// else is a Trap.
func Classify(err error) InvocationErrorKind {
	if err == nil {
		return InvocationErrorTrap
	}
	if stderrors.Is(err, syscall.ENOTCONN) || HasKind(err, KindClosed) {
		return InvocationErrorNotFound
	}
	return InvocationErrorTrap
}
