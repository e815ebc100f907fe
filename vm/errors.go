package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Host errors: raised by the program being run, not by the runtime itself
// ---------------------------------------------------------------------------

// Host error kinds.
const (
	TypeError         = "TypeError"
	ValueError        = "ValueError"
	ZeroDivisionError = "ZeroDivisionError"
	IndexError        = "IndexError"
	KeyError          = "KeyError"
	NameError         = "NameError"
	AttributeError    = "AttributeError"
	UnboundLocalError = "UnboundLocalError"
	RecursionError    = "RecursionError"
)

// HostError is an error of the hosted program. The tracer re-raises these
// unchanged so traced and untraced runs fail the same way.
type HostError struct {
	Kind string
	Msg  string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches another HostError of the same kind, so errors.Is works with
// sentinel values built by NewHostError(kind, "").
func (e *HostError) Is(target error) bool {
	t, ok := target.(*HostError)
	return ok && t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// NewHostError creates a host error of the given kind.
func NewHostError(kind, format string, args ...any) *HostError {
	return &HostError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsHostError reports whether err is (or wraps) a host error, returning it.
func IsHostError(err error) (*HostError, bool) {
	var he *HostError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

func typeErrorf(format string, args ...any) error {
	return NewHostError(TypeError, format, args...)
}
