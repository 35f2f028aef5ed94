package errors

import (
	"sync"
)

// MultiError is a list of errors, it can be modified from multiple goroutines.
type MultiError interface {
	Len() int
	Error() string
	Unwrap() error
	StackTrace() StackTrace
	WrappedErrors() []error
	// ErrorOrNil returns the error, if the list is not empty, otherwise nil.
	ErrorOrNil() error
	// Append one or more errors to the list, a MultiError is flattened, nil errors are skipped.
	Append(errs ...error)
	// AppendNested appends a new NestedError with the main error, sub errors can be added later.
	AppendNested(err error) NestedError
	// AppendWithPrefix appends the error wrapped with the prefix.
	AppendWithPrefix(err error, prefix string)
	// AppendWithPrefixf appends the error wrapped with the formatted prefix.
	AppendWithPrefixf(err error, format string, a ...any)
}

type multiErrorGetter interface {
	WrappedErrors() []error
}

type multiError struct {
	lock  sync.Mutex
	errs  []error
	trace StackTrace
}

func NewMultiError() MultiError {
	return &multiError{trace: callers()}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errs)
}

func (e *multiError) Error() string {
	return Format(e)
}

func (e *multiError) Unwrap() error {
	return chain(e.WrappedErrors())
}

func (e *multiError) StackTrace() StackTrace {
	return e.trace
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

func (e *multiError) ErrorOrNil() error {
	if e.Len() == 0 {
		return nil
	}
	return e
}

func (e *multiError) Append(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, err := range errs {
		switch v := err.(type) { // nolint: errorlint
		case nil:
			continue
		case nestedErrorGetter:
			// A nested error keeps its main error and sub errors together
			e.errs = append(e.errs, err)
		case multiErrorGetter:
			e.errs = append(e.errs, v.WrappedErrors()...)
		default:
			e.errs = append(e.errs, err)
		}
	}
}

func (e *multiError) AppendNested(err error) NestedError {
	nested := NewNestedError(err)
	e.Append(nested)
	return nested
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	e.Append(PrefixError(err, prefix))
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.Append(PrefixErrorf(err, format, a...))
}
