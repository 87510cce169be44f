package core

import (
	"context"
	"sync"
	"time"
)

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// event source (e.g., a webhook handler) from the job execution mechanism.
type JobDispatcher interface {
	// Dispatch accepts a ReviewRequest and queues it for processing.
	// It returns an error if the job cannot be queued, for example, if the
	// queue is full, providing a mechanism for backpressure. The returned
	// Task can be observed but the caller is never required to wait on it.
	Dispatch(ctx context.Context, req *ReviewRequest) (*Task, error)

	// InFlight returns the number of tasks that are queued or running.
	InFlight() int

	// Stop drains the queue and waits for running jobs to finish.
	Stop()
}

// Job represents a single, executable unit of work that can be processed by the
// application's job dispatcher.
type Job interface {
	// Run executes the job's logic. The returned error is reported on the
	// task handle and in server logs only.
	Run(ctx context.Context, req *ReviewRequest) error
}

// TaskState is the lifecycle state of a dispatched task.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task is a handle on one dispatched review request.
type Task struct {
	ID      string
	Request *ReviewRequest

	mu         sync.Mutex
	state      TaskState
	err        error
	queuedAt   time.Time
	finishedAt time.Time
	done       chan struct{}
}

// NewTask creates a task in the queued state.
func NewTask(id string, req *ReviewRequest) *Task {
	return &Task{
		ID:       id,
		Request:  req,
		state:    TaskQueued,
		queuedAt: time.Now(),
		done:     make(chan struct{}),
	}
}

// State returns the current state of the task.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the job error once the task failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// MarkRunning moves the task to the running state.
func (t *Task) MarkRunning() {
	t.mu.Lock()
	t.state = TaskRunning
	t.mu.Unlock()
}

// Finish records the job result and releases waiters. Calling it twice is a no-op.
func (t *Task) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskSucceeded || t.state == TaskFailed {
		return
	}
	t.err = err
	t.state = TaskSucceeded
	if err != nil {
		t.state = TaskFailed
	}
	t.finishedAt = time.Now()
	close(t.done)
}
