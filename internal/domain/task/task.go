package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusComplete  TaskStatus = "complete"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// TaskExecutor does the task's work and returns its result.
type TaskExecutor func(ctx context.Context) (any, error)

// TaskCallback defines the interface for task completion handling
type TaskCallback interface {
	OnComplete(result any)
	OnError(err error)
}

// CallbackFuncs adapts two functions to TaskCallback. Nil members are skipped.
type CallbackFuncs struct {
	Complete func(result any)
	Error    func(err error)
}

func (c CallbackFuncs) OnComplete(result any) {
	if c.Complete != nil {
		c.Complete(result)
	}
}

func (c CallbackFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// Task is a named unit of asynchronous work with a completion callback.
type Task struct {
	ID        string
	Name      string
	Callback  TaskCallback
	CreatedAt time.Time

	ctx      context.Context
	executor TaskExecutor

	mu        sync.RWMutex
	status    TaskStatus
	result    any
	err       error
	updatedAt time.Time
}

// NewTask creates a pending task bound to ctx.
func NewTask(ctx context.Context, name string, executor TaskExecutor) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		ctx:       ctx,
		executor:  executor,
		status:    TaskStatusPending,
		updatedAt: now,
	}
}

func (t *Task) setState(status TaskStatus, result any, err error) {
	t.mu.Lock()
	t.status = status
	t.result = result
	t.err = err
	t.updatedAt = time.Now()
	t.mu.Unlock()
}

// Status reports the current status.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns the result and error once the task has finished.
func (t *Task) Result() (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result, t.err
}

// Execute runs the task on the calling goroutine and invokes the callback.
// A panic in the executor is reported as a failure.
func (t *Task) Execute() {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %s panicked: %v", t.Name, r)
			t.setState(TaskStatusFailed, nil, err)
			if t.Callback != nil {
				t.Callback.OnError(err)
			}
		}
	}()

	if err := t.ctx.Err(); err != nil {
		t.setState(TaskStatusCancelled, nil, err)
		if t.Callback != nil {
			t.Callback.OnError(err)
		}
		return
	}

	t.setState(TaskStatusRunning, nil, nil)

	if t.executor == nil {
		err := fmt.Errorf("no executor for task %s", t.Name)
		t.setState(TaskStatusFailed, nil, err)
		if t.Callback != nil {
			t.Callback.OnError(err)
		}
		return
	}

	result, err := t.executor(t.ctx)
	if err != nil {
		t.setState(TaskStatusFailed, nil, err)
		if t.Callback != nil {
			t.Callback.OnError(err)
		}
		return
	}

	t.setState(TaskStatusComplete, result, nil)
	if t.Callback != nil {
		t.Callback.OnComplete(result)
	}
}
