// Package future provides a single-assignment, awaitable result used by
// the actor kernel's send operation and the router's reply-waiter
// registry. Unlike a protobuf-locked future, Future[T] is generic because
// a Send's reply payload is decoded through whichever codec the envelope
// named, not a fixed wire type.
package future

import (
	"context"
	"sync"
)

// Future represents a value that will become available later, or an
// error if it could not be produced. Await blocks until the Future is
// completed or ctx is canceled.
type Future[T any] interface {
	// Await blocks until the Future is completed or context is canceled and
	// returns either a result or an error.
	Await(ctx context.Context) (T, error)

	// complete completes the Future with either a value or an error. Used
	// internally by completable.
	complete(T, error)
}

// New creates a Future that runs task asynchronously in its own goroutine
// and completes with whatever task returns.
func New[T any](task func() (T, error)) Future[T] {
	comp := newCompletable[T]()
	go func() {
		result, err := task()
		if err == nil {
			comp.Success(result)
		} else {
			comp.Failure(err)
		}
	}()
	return comp.Future()
}

type result[T any] struct {
	value T
	err   error
}

// future implements Future[T].
type future[T any] struct {
	acceptOnce   sync.Once
	completeOnce sync.Once
	done         chan result[T]
	value        T
	err          error
}

var _ Future[int] = (*future[int])(nil)

func newFuture[T any]() Future[T] {
	return &future[T]{done: make(chan result[T], 1)}
}

func (f *future[T]) wait(ctx context.Context) {
	f.acceptOnce.Do(func() {
		select {
		case r := <-f.done:
			f.value, f.err = r.value, r.err
		case <-ctx.Done():
			f.err = ctx.Err()
		}
	})
}

// Await blocks until the Future is completed or context is canceled.
func (f *future[T]) Await(ctx context.Context) (T, error) {
	f.wait(ctx)
	return f.value, f.err
}

// complete completes the Future exactly once; later calls are ignored so
// a reply racing a timeout never double-delivers.
func (f *future[T]) complete(value T, err error) {
	f.completeOnce.Do(func() {
		f.done <- result[T]{value: value, err: err}
	})
}

// Completable is a writable, single-assignment handle on a Future,
// handed to the router's reply-waiter registry so a Reply, Error,
// timeout, or Cancel can each independently attempt to resolve it.
type Completable[T any] interface {
	// Success completes the underlying Future with a value.
	Success(T)
	// Failure fails the underlying Future with an error.
	Failure(error)
	// Future returns the underlying Future.
	Future() Future[T]
}

type completer[T any] struct {
	once   sync.Once
	future Future[T]
}

var _ Completable[int] = (*completer[int])(nil)

// NewCompletable returns a new Completable[T] backed by a fresh Future[T].
func NewCompletable[T any]() Completable[T] {
	return newCompletable[T]()
}

func newCompletable[T any]() *completer[T] {
	return &completer[T]{future: newFuture[T]()}
}

func (c *completer[T]) Success(value T) {
	c.once.Do(func() {
		c.future.(*future[T]).complete(value, nil)
	})
}

func (c *completer[T]) Failure(err error) {
	c.once.Do(func() {
		var zero T
		c.future.(*future[T]).complete(zero, err)
	})
}

func (c *completer[T]) Future() Future[T] {
	return c.future
}
