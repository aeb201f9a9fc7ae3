// Package task tracks in-flight and completed background operations so a
// polling caller can observe long-running progress.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"casetrace/constants"
)

// Info is the tracked state of one background operation. Owned by the Tracker
// for its whole lifecycle; callers hold only the task id.
type Info struct {
	TaskID    string               `json:"task_id"`
	Kind      string               `json:"kind"`
	Status    constants.TaskStatus `json:"status"`
	Progress  int                  `json:"progress"`
	Message   string               `json:"message"`
	Result    any                  `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Update mutates selected fields of a task under the tracker's lock.
type Update func(*Info)

func WithStatus(s constants.TaskStatus) Update {
	return func(i *Info) { i.Status = s }
}

func WithProgress(p int) Update {
	return func(i *Info) {
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		i.Progress = p
	}
}

func WithMessage(m string) Update {
	return func(i *Info) { i.Message = m }
}

func WithResult(r any) Update {
	return func(i *Info) { i.Result = r }
}

func WithError(e string) Update {
	return func(i *Info) { i.Error = e }
}

// Tracker is a mutex-guarded registry of tasks. It is the only in-process
// mutable shared state; updates arrive from arbitrary concurrent workers.
type Tracker struct {
	mu        sync.RWMutex
	tasks     map[string]*Info
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewTracker builds a tracker with the given retention window (how long an
// untouched task survives, measured from its last update). Zero means 1 hour.
func NewTracker(retention time.Duration, logger *slog.Logger) *Tracker {
	if retention <= 0 {
		retention = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		tasks:     make(map[string]*Info),
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Create registers a new pending task and returns its id.
func (t *Tracker) Create(kind string) string {
	id := uuid.New().String()
	now := t.now()
	t.mu.Lock()
	t.tasks[id] = &Info{
		TaskID:    id,
		Kind:      kind,
		Status:    constants.TaskStatusPending,
		Message:   "task created",
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Unlock()
	t.logger.Info("task created", "task_id", id, "kind", kind)
	return id
}

// Update merges the given field updates into the task and refreshes
// updated_at. Unknown ids are ignored.
func (t *Tracker) Update(id string, updates ...Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.tasks[id]
	if !ok {
		return
	}
	for _, u := range updates {
		u(info)
	}
	info.UpdatedAt = t.now()
}

// Complete marks the task terminal-success with the given result.
func (t *Tracker) Complete(id string, result any) {
	t.Update(id,
		WithStatus(constants.TaskStatusCompleted),
		WithProgress(100),
		WithMessage("task completed"),
		WithResult(result),
	)
	t.logger.Info("task completed", "task_id", id)
}

// Fail marks the task terminal-failure with the given error text.
func (t *Tracker) Fail(id string, errMsg string) {
	t.Update(id,
		WithStatus(constants.TaskStatusFailed),
		WithMessage("task failed"),
		WithError(errMsg),
	)
	t.logger.Error("task failed", "task_id", id, "error", errMsg)
}

// Get returns a copy of the task, and whether it exists. Not-found is
// distinguishable from any live status.
func (t *Tracker) Get(id string) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.tasks[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// EvictStale removes every task untouched for longer than the retention
// window, terminal or not. A caller that never polls a completed task
// eventually loses its result; memory stays bounded in exchange.
func (t *Tracker) EvictStale() int {
	cutoff := t.now().Add(-t.retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, info := range t.tasks {
		if info.UpdatedAt.Before(cutoff) {
			delete(t.tasks, id)
			removed++
			t.logger.Info("task evicted", "task_id", id, "status", info.Status)
		}
	}
	return removed
}

// RunJanitor evicts stale tasks on the given interval until ctx is done.
func (t *Tracker) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.EvictStale()
		}
	}
}
