// Package async runs extraction pipelines as background units of work,
// mirroring their progress into the task tracker for polling callers.
package async

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"casetrace/constants"
	"casetrace/internal/entity"
	"casetrace/internal/fetch"
	"casetrace/internal/task"
)

// Job is the smallest useful unit: one case, one source, one tracked task.
// CleanupPath, when set, names a file the worker removes once the job ends;
// upload handlers use it for the spooled request body.
type Job struct {
	TaskID      string
	CaseID      string
	Source      fetch.Source
	CleanupPath string
	SubmittedAt time.Time
}

// caseProcessor is what the queue needs from the orchestrator.
type caseProcessor interface {
	Process(ctx context.Context, caseID string, source fetch.Source) (*entity.ExtractionRecord, error)
}

type Queue struct {
	proc    caseProcessor
	tracker *task.Tracker
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc caseProcessor, tracker *task.Tracker, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		tracker: tracker,
		logger:  logger,
		workers: 4,
		timeout: 20 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// run executes one job under the per-job timeout and mirrors the outcome into
// the tracker. Once started, a job is not cancellable by the caller; the
// timeout is the only bound.
func (q *Queue) run(workerID int, job Job) {
	if job.CleanupPath != "" {
		defer func() {
			if err := os.Remove(job.CleanupPath); err != nil && !os.IsNotExist(err) {
				q.logger.Warn("cleanup of spooled upload failed", "path", job.CleanupPath, "error", err)
			}
		}()
	}

	q.tracker.Update(job.TaskID,
		task.WithStatus(constants.TaskStatusProcessing),
		task.WithProgress(10),
		task.WithMessage("extraction in progress"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	rec, err := q.proc.Process(ctx, job.CaseID, job.Source)
	cancel()

	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "case_id", job.CaseID, "task_id", job.TaskID, "error", err)
		q.tracker.Fail(job.TaskID, err.Error())
		return
	}
	q.logger.Info("processed case successfully", "worker_id", workerID, "case_id", job.CaseID, "task_id", job.TaskID)
	q.tracker.Complete(job.TaskID, rec)
}

// Enqueue submits a job. During shutdown the job is not accepted and its task
// is failed so pollers are not left waiting on a unit that will never run.
func (q *Queue) Enqueue(_ context.Context, job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "case_id", job.CaseID, "task_id", job.TaskID)
		q.tracker.Fail(job.TaskID, "service is shutting down")
		if job.CleanupPath != "" {
			_ = os.Remove(job.CleanupPath)
		}
		return
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued case for processing", "case_id", job.CaseID, "task_id", job.TaskID)
	default:
		q.logger.Warn("queue full, applying backpressure", "case_id", job.CaseID)
		q.ch <- job
	}
}

func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
