package executor

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// InnerError reports a broken invariant inside the tracer. It is never
// absorbed: the cache returns it to whoever installed the hook.
type InnerError struct {
	err error
}

func innerErrorf(format string, args ...any) error {
	return &InnerError{err: pkgerrors.Errorf(format, args...)}
}

func (e *InnerError) Error() string {
	return "executor: internal error: " + e.err.Error()
}

func (e *InnerError) Unwrap() error {
	return e.err
}

// StackTrace returns where the error was created.
func (e *InnerError) StackTrace() pkgerrors.StackTrace {
	if st, ok := e.err.(interface{ StackTrace() pkgerrors.StackTrace }); ok {
		return st.StackTrace()
	}
	return nil
}

// Format prints the creation stack for %+v.
func (e *InnerError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, "executor: internal error: ")
		fmt.Fprintf(s, "%+v", e.err)
		return
	}
	io.WriteString(s, e.Error())
}

// UnsupportedError signals a construct the tracer does not handle. The
// frame falls back to running its original code.
type UnsupportedError struct {
	Reason string
}

func unsupportedf(format string, args ...any) error {
	return &UnsupportedError{Reason: fmt.Sprintf(format, args...)}
}

func (e *UnsupportedError) Error() string {
	return "executor: unsupported: " + e.Reason
}

// BreakGraphError signals an operation that must run untraced, such as a
// call with side effects. The top-level executor may compile what it has
// traced so far and resume the original code at the call.
type BreakGraphError struct {
	Reason string
}

func breakGraphf(format string, args ...any) error {
	return &BreakGraphError{Reason: fmt.Sprintf(format, args...)}
}

func (e *BreakGraphError) Error() string {
	return "executor: graph break: " + e.Reason
}

// fallbackReason reports whether err asks for fallback rather than
// failure, returning its reason.
func fallbackReason(err error) (string, bool) {
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue.Reason, true
	}
	var be *BreakGraphError
	if errors.As(err, &be) {
		return be.Reason, true
	}
	return "", false
}

// IsInnerError reports whether err is an internal tracer error.
func IsInnerError(err error) bool {
	var ie *InnerError
	return errors.As(err, &ie)
}
