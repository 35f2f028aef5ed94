// Package errors provides errors with a stack trace, multi error, nested error with a prefix,
// and configurable error formatting, see Format function.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// StackTrace is a stack of program counters, from the error origin to the program entrypoint.
type StackTrace []uintptr

type stackTracer interface {
	StackTrace() StackTrace
}

// chain of errors, it implements error and the Unwrap method,
// so the errors are traversable by the standard Is/As functions.
type chain []error

// withStack wraps an error and adds the stack trace, the error message is unchanged.
type withStack struct {
	err   error
	trace StackTrace
}

// wrappedError replaces the original error message, the original error is available via the Unwrap method.
type wrappedError struct {
	err   error
	msg   string
	trace StackTrace
}

func New(msg string) error {
	return &withStack{err: stderrors.New(msg), trace: callers()}
}

func Errorf(format string, a ...any) error {
	return &withStack{err: fmt.Errorf(format, a...), trace: callers()}
}

// Wrap the error with a new message, the original message is hidden.
func Wrap(err error, msg string) error {
	return &wrappedError{err: err, msg: msg, trace: callers()}
}

// Wrapf the error with a new formatted message, the original message is hidden.
func Wrapf(err error, format string, a ...any) error {
	return &wrappedError{err: err, msg: fmt.Sprintf(format, a...), trace: callers()}
}

// WithStack adds the stack trace to the error, if it is not already present.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var tracer stackTracer
	if As(err, &tracer) {
		return err
	}
	return &withStack{err: err, trace: callers()}
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

func (e chain) Error() string {
	out := ""
	for i, err := range e {
		if i > 0 {
			out += ": "
		}
		out += err.Error()
	}
	return out
}

func (e chain) Unwrap() []error {
	return e
}

func (e *withStack) Error() string {
	return e.err.Error()
}

func (e *withStack) StackTrace() StackTrace {
	return e.trace
}

func (e *withStack) Unwrap() error {
	return e.err
}

func (e *wrappedError) Error() string {
	return e.msg
}

func (e *wrappedError) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) WriteError(w Writer, level int, trace StackTrace) {
	w.WriteMessage(e.msg, trace)

	// Write also the original error, if the debug/unwrap output is enabled
	config := w.Config()
	if config.WithUnwrap || config.WithStack {
		w.Write(fmt.Sprintf(" (%T):", e))
		w.WriteNewLine()
		w.WriteIndent(level)
		w.WriteBullet()
		w.WriteErrorLevel(level+1, e.err, nil)
	}
}

func callers() StackTrace {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return StackTrace(pcs[0:n])
}
