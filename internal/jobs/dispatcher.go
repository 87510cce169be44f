// Package jobs defines background tasks such as automated code reviews.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iotserver24/xibe-review/internal/core"
)

const queueSize = 100

var (
	ErrQueueFull         = errors.New("job queue is full, cannot accept new review job")
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// dispatcher implements core.JobDispatcher and manages a pool of worker goroutines
// for processing review requests.
type dispatcher struct {
	reviewJob  core.Job        // Job implementation executed by each worker.
	jobQueue   chan *core.Task // Queue of accepted tasks.
	maxWorkers int             // Number of concurrent workers.
	wg         sync.WaitGroup  // Tracks active workers for graceful shutdown.
	logger     *slog.Logger    // Logger instance for the dispatcher.
	inFlight   atomic.Int64    // Tasks queued or running.
	mu         sync.RWMutex    // Guards stopped and the queue close.
	stopped    bool
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(reviewJob core.Job, maxWorkers int, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &dispatcher{
		reviewJob:  reviewJob,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.Task, queueSize),
		logger:     logger,
	}
	d.startWorkers()
	return d
}

// startWorkers launches maxWorkers goroutines to process jobs from the queue.
func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes tasks from the queue until it's closed.
func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("starting review worker", "id", workerID)

	for task := range d.jobQueue {
		d.processTask(workerID, task)
	}

	d.logger.Debug("shutting down review worker", "id", workerID)
}

// processTask runs the review job detached from the request that queued it.
func (d *dispatcher) processTask(workerID int, task *core.Task) {
	defer d.inFlight.Add(-1)
	req := task.Request
	task.MarkRunning()

	d.logger.Info("worker processing job",
		"worker_id", workerID,
		"task_id", task.ID,
		"repo", req.RepoFullName(),
		"pr", req.PRNumber,
	)

	err := d.runSafely(req)
	task.Finish(err)

	switch {
	case err == nil:
	case core.IsSuppressed(err):
		d.logger.Info("review skipped", "task_id", task.ID, "repo", req.RepoFullName(), "pr", req.PRNumber, "reason", err)
	default:
		d.logger.Error("code review job failed",
			"task_id", task.ID,
			"repo", req.RepoFullName(),
			"pr", req.PRNumber,
			"error", err,
		)
	}
}

func (d *dispatcher) runSafely(req *core.ReviewRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review job panicked: %v", r)
		}
	}()
	return d.reviewJob.Run(context.Background(), req)
}

// Dispatch queues a review request for processing by a worker.
func (d *dispatcher) Dispatch(_ context.Context, req *core.ReviewRequest) (*core.Task, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return nil, ErrDispatcherStopped
	}

	task := core.NewTask(uuid.NewString(), req)
	d.inFlight.Add(1)
	select {
	case d.jobQueue <- task:
		d.logger.Info("queued code review job", "task_id", task.ID, "repo", req.RepoFullName(), "pr", req.PRNumber)
		return task, nil
	default:
		d.inFlight.Add(-1)
		return nil, ErrQueueFull
	}
}

// InFlight returns the number of tasks that are queued or running.
func (d *dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	d.wg.Wait()
	d.logger.Info("all review jobs have finished")
}
