// Package background runs fire-and-forget work (derivative requests and
// similar follow-ups) under a concurrency limit while keeping every task
// visible: callers can list what is queued or running and wait for the set
// to drain on shutdown.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"accession/internal/logging"
)

// Task is a unit of background work. It must return when ctx is cancelled.
type Task func(ctx context.Context) error

// State of a tracked task.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
)

// TaskStatus describes a task that has not finished yet.
type TaskStatus struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject,omitempty"`
	State     State     `json:"state"`
	QueuedAt  time.Time `json:"queued_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Summary counts tracked tasks.
type Summary struct {
	Active    []TaskStatus `json:"active"`
	Completed int64        `json:"completed"`
	Failed    int64        `json:"failed"`
	LastError string       `json:"last_error,omitempty"`
}

// Tracker bounds and records background tasks.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	logger *slog.Logger

	inflight sync.WaitGroup

	mu        sync.Mutex
	nextID    int64
	active    map[int64]*TaskStatus
	completed int64
	failed    int64
	lastErr   error
	closed    bool
}

// New returns a tracker running at most limit tasks at once. A limit of zero
// or less means no limit.
func New(parent context.Context, limit int, logger *slog.Logger) *Tracker {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	t := &Tracker{
		ctx:    ctx,
		cancel: cancel,
		logger: logging.NewComponentLogger(logger, "background"),
		active: make(map[int64]*TaskStatus),
	}
	if limit > 0 {
		t.group.SetLimit(limit)
	}
	return t
}

// ErrClosed is returned by Go after Shutdown.
var ErrClosed = errors.New("background tracker closed")

// Go schedules task without blocking the caller. Subject identifies what the
// task works on (e.g. an object uuid) for status listings.
func (t *Tracker) Go(name, subject string, task Task) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.nextID++
	status := &TaskStatus{
		ID:       t.nextID,
		Name:     name,
		Subject:  subject,
		State:    StateQueued,
		QueuedAt: time.Now(),
	}
	t.active[status.ID] = status
	t.inflight.Add(1)
	t.mu.Unlock()

	go t.group.Go(func() error {
		defer t.inflight.Done()
		t.run(status, task)
		return nil
	})
	return nil
}

func (t *Tracker) run(status *TaskStatus, task Task) {
	t.mu.Lock()
	status.State = StateRunning
	status.StartedAt = time.Now()
	t.mu.Unlock()

	logger := t.logger.With(
		logging.String("task", status.Name),
		logging.String("subject", status.Subject),
	)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("background task panicked")
				logger.Error("background task panic", logging.Any("panic", r))
			}
		}()
		err = task(t.ctx)
	}()

	t.mu.Lock()
	delete(t.active, status.ID)
	if err != nil {
		t.failed++
		t.lastErr = err
	} else {
		t.completed++
	}
	t.mu.Unlock()

	switch {
	case err == nil:
		logger.Debug("background task finished", logging.Duration("elapsed", time.Since(status.StartedAt)))
	case errors.Is(err, context.Canceled):
		logger.Info("background task cancelled")
	default:
		logging.WarnWithContext(logger, "background task failed", "background_task_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the repository record is complete; rerun the follow-up manually"),
			logging.String(logging.FieldImpact, "derived files missing until rerun"),
		)
	}
}

// Summary returns the tasks still queued or running, oldest first.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := make([]TaskStatus, 0, len(t.active))
	for _, status := range t.active {
		active = append(active, *status)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	summary := Summary{Active: active, Completed: t.completed, Failed: t.failed}
	if t.lastErr != nil {
		summary.LastError = t.lastErr.Error()
	}
	return summary
}

// Wait blocks until every scheduled task has finished or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new tasks, cancels running ones and waits for them to
// return or for ctx to expire.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	return t.Wait(ctx)
}
