// Package future provides a single-assignment cell for results of asynchronous operations.
//
// The cell starts in the Pending state and moves exactly once to one of the
// terminal states. All transitions go through a "try" method which reports
// whether the caller won the transition. Losing a transition is not an error,
// the caller can inspect the terminal state instead.
package future

import (
	"context"
	"sync"

	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

// ErrCancelled is reported by Wait and Err when the future has been cancelled.
var ErrCancelled = errors.New("future is cancelled")

type State int

const (
	Pending State = iota
	Completed
	Failed
	Cancelled
)

func (v State) String() string {
	switch v {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		panic(errors.Errorf(`unexpected state "%d"`, int(v)))
	}
}

// Future is a single-assignment cell.
// The value or the error is assigned exactly once, all later transitions are rejected.
type Future[T any] struct {
	lock      *sync.Mutex
	done      chan struct{}
	state     State
	value     T
	err       error
	listeners []func(*Future[T])
}

func New[T any]() *Future[T] {
	return &Future[T]{
		lock: &sync.Mutex{},
		done: make(chan struct{}),
	}
}

// TryComplete moves the future to the Completed state.
// It returns false if the future is already in a terminal state.
func (f *Future[T]) TryComplete(value T) bool {
	return f.transition(Completed, value, nil)
}

// TryFail moves the future to the Failed state.
// It returns false if the future is already in a terminal state.
func (f *Future[T]) TryFail(err error) bool {
	if err == nil {
		panic(errors.New("error cannot be nil"))
	}
	var empty T
	return f.transition(Failed, empty, err)
}

// TryCancel moves the future to the Cancelled state.
// It returns false if the future is already in a terminal state.
func (f *Future[T]) TryCancel() bool {
	var empty T
	return f.transition(Cancelled, empty, ErrCancelled)
}

func (f *Future[T]) State() State {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state
}

func (f *Future[T]) IsPending() bool {
	return f.State() == Pending
}

func (f *Future[T]) IsCompleted() bool {
	return f.State() == Completed
}

func (f *Future[T]) IsFailed() bool {
	return f.State() == Failed
}

func (f *Future[T]) IsCancelled() bool {
	return f.State() == Cancelled
}

// Done channel is closed when the future reaches a terminal state.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future reaches a terminal state or the context is done.
// It returns the error of a failed future and ErrCancelled for a cancelled future.
func (f *Future[T]) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.Err()
	}
}

// Value returns the assigned value, the zero value if the future is not completed.
func (f *Future[T]) Value() T {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.value
}

// Err returns the assigned error, nil if the future is pending or completed.
func (f *Future[T]) Err() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.err
}

// OnDone registers a callback invoked when the future reaches a terminal state.
// If the future is already terminal, the callback is invoked immediately.
// Callbacks are invoked synchronously, in the registration order, by the goroutine that won the transition.
func (f *Future[T]) OnDone(fn func(f *Future[T])) {
	f.lock.Lock()
	if f.state == Pending {
		f.listeners = append(f.listeners, fn)
		f.lock.Unlock()
		return
	}
	f.lock.Unlock()
	fn(f)
}

func (f *Future[T]) transition(state State, value T, err error) bool {
	f.lock.Lock()
	if f.state != Pending {
		f.lock.Unlock()
		return false
	}

	f.state = state
	f.value = value
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.lock.Unlock()

	for _, fn := range listeners {
		fn(f)
	}
	return true
}
