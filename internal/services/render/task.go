package render

import (
	"context"
	"sync"
)

// Task is one in-flight rasterization of a (page, scale) pair.
//
// Go Pattern: Cancellation rides on context.Context. Cancel can be called
// any number of times from any goroutine; only the first call has an effect.
type Task struct {
	Token uint64  // generation this task was created for
	Page  int     // 1-indexed page number
	Scale float64 // zoom factor

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewTask creates a task for the given generation token.
func NewTask(token uint64, page int, scale float64) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		Token:  token,
		Page:   page,
		Scale:  scale,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Context is cancelled when the task is cancelled.
func (t *Task) Context() context.Context { return t.ctx }

// Cancel asks the task to stop. Safe to call repeatedly.
func (t *Task) Cancel() { t.cancel() }

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.ctx.Err() != nil }

// Done is closed once the task has finished, whatever the outcome.
func (t *Task) Done() <-chan struct{} { return t.done }

// Finish marks the task as finished and releases its context.
func (t *Task) Finish() {
	t.once.Do(func() {
		t.cancel()
		close(t.done)
	})
}
