package task

import (
	"context"
	"fmt"
)

// Future is the typed handle of a task running on its own goroutine.
type Future[T any] struct {
	task  *Task
	done  chan struct{}
	value T
	err   error
}

// Go starts fn on a new goroutine. fn receives ctx, not the caller's request
// context, so the work outlives the call that launched it.
func Go[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	f.task = NewTask(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	f.task.Callback = CallbackFuncs{
		Complete: func(result any) {
			if v, ok := result.(T); ok {
				f.value = v
			}
			close(f.done)
		},
		Error: func(err error) {
			f.err = err
			close(f.done)
		},
	}
	go f.task.Execute()
	return f
}

// Resolved returns a future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}

// ID identifies the underlying task. Empty for resolved futures.
func (f *Future[T]) ID() string {
	if f.task == nil {
		return ""
	}
	return f.task.ID
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx ends. A ctx error does not stop the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("wait for %s: %w", f.name(), ctx.Err())
	}
}

func (f *Future[T]) name() string {
	if f.task == nil {
		return "future"
	}
	return f.task.Name
}
