// Package errors creates error values that remember where they were made.
// Each error carries a message, an optional wrapped cause and the call
// stack captured at the point of creation.  Causes are exposed through the
// standard Unwrap convention, so errors.Is and errors.As from the standard
// library work across chains built with this package.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is implemented by every error this package creates.
type Error interface {
	error

	// Message returns this error's own message, without the messages of
	// any wrapped causes.
	Message() string

	// Unwrap returns the wrapped cause, or nil.
	Unwrap() error

	// Stack renders the call stack captured when the error was created.
	Stack() string
}

const maxStackDepth = 64

type traceError struct {
	msg   string
	cause error
	pcs   []uintptr
}

func newTraceError(cause error, msg string) *traceError {
	pcs := make([]uintptr, maxStackDepth)
	// Skip runtime.Callers, this function and the exported constructor.
	n := runtime.Callers(3, pcs)
	return &traceError{msg: msg, cause: cause, pcs: pcs[:n]}
}

// New returns an error with the given message and the current stack.
func New(msg string) Error {
	return newTraceError(nil, msg)
}

// Newf is New with fmt.Sprintf formatting.
func Newf(format string, args ...interface{}) Error {
	return newTraceError(nil, fmt.Sprintf(format, args...))
}

// Wrap returns an error with the given message and the current stack,
// wrapping err as its cause.
func Wrap(err error, msg string) Error {
	return newTraceError(err, msg)
}

// Wrapf is Wrap with fmt.Sprintf formatting.
func Wrapf(err error, format string, args ...interface{}) Error {
	return newTraceError(err, fmt.Sprintf(format, args...))
}

// Error joins the message chain outermost first.
func (e *traceError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *traceError) Message() string {
	return e.msg
}

func (e *traceError) Unwrap() error {
	return e.cause
}

func (e *traceError) Stack() string {
	var b strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// RootError peels every layer of wrapping off err and returns the
// innermost error.  It follows the standard Unwrap convention, so causes
// attached by this package and wrappers like net.OpError and
// os.SyscallError all unwrap the same way.
func RootError(err error) error {
	for err != nil {
		inner := stderrors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
	return nil
}
