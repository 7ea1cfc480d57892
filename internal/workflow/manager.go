package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"accession/internal/config"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/services"
)

var (
	// ErrNotRunning is returned when a batch is started before the manager.
	ErrNotRunning = errors.New("workflow manager not running")
	// ErrAtCapacity is returned when every drain slot is busy.
	ErrAtCapacity = errors.New("maximum concurrent batches reached")
	// ErrBatchActive is returned when a force-started batch is already draining.
	ErrBatchActive = errors.New("batch already draining")
)

// Drainer runs batches. batch.Driver implements it.
type Drainer interface {
	Drain(ctx context.Context, batch string) error
	IsRunning(batch string) bool
	Running() map[string]time.Time
}

// Store is the slice of the queue store the manager reads.
type Store interface {
	PendingBatches(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// Manager schedules batch drains.
type Manager struct {
	store         Store
	driver        Drainer
	logger        *slog.Logger
	pollInterval  time.Duration
	maxConcurrent int
	autoStart     bool

	mu        sync.RWMutex
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	active    map[string]struct{}
	lastErr   error
	lastBatch string
	wake      chan struct{}
	checks    []HealthCheck
}

// NewManager constructs a manager from the workflow section of cfg.
func NewManager(cfg config.Workflow, store Store, driver Drainer, logger *slog.Logger, checks ...HealthCheck) *Manager {
	interval := time.Duration(cfg.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	limit := cfg.MaxConcurrentBatches
	if limit <= 0 {
		limit = 1
	}
	return &Manager{
		store:         store,
		driver:        driver,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		pollInterval:  interval,
		maxConcurrent: limit,
		autoStart:     cfg.AutoStart,
		active:        make(map[string]struct{}),
		wake:          make(chan struct{}, 1),
		checks:        checks,
	}
}

// Start begins background dispatching.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(runCtx)
	m.logger.Info("workflow started",
		logging.Event("workflow_started"),
		logging.Bool("auto_start", m.autoStart),
		logging.Int("max_concurrent_batches", m.maxConcurrent),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop cancels every drain and waits for them to return. Interrupted
// records stay in flight and resume on the next drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.Event("workflow_stopped"))
}

// Wake asks the loop to look for pending batches now.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// StartBatch drains batch immediately, even when auto_start is off.
func (m *Manager) StartBatch(batch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrNotRunning
	}
	if _, busy := m.active[batch]; busy || m.driver.IsRunning(batch) {
		return fmt.Errorf("%w: %s", ErrBatchActive, batch)
	}
	if len(m.active) >= m.maxConcurrent {
		return ErrAtCapacity
	}
	m.launchLocked(batch)
	return nil
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	for {
		if m.autoStart {
			m.dispatch(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) dispatch(ctx context.Context) {
	pending, err := m.store.PendingBatches(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.setLastError(err)
		m.logger.Error("failed to list pending batches",
			logging.Error(err),
			logging.Event("queue_fetch_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	for _, batch := range pending {
		if len(m.active) >= m.maxConcurrent {
			return
		}
		if _, busy := m.active[batch]; busy || m.driver.IsRunning(batch) {
			continue
		}
		m.launchLocked(batch)
	}
}

// launchLocked starts a drain goroutine. m.mu must be held.
func (m *Manager) launchLocked(batch string) {
	m.active[batch] = struct{}{}
	m.lastBatch = batch
	m.wg.Add(1)
	ctx := m.runCtx
	go func() {
		defer m.wg.Done()
		defer m.finished(batch)
		if err := m.driver.Drain(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
			logging.ErrorWithContext(logging.WithContext(services.WithBatch(ctx, batch), m.logger),
				"batch drain failed", "batch_drain_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the queue database; the batch resumes on the next poll"),
			)
		}
	}()
}

func (m *Manager) finished(batch string) {
	m.mu.Lock()
	delete(m.active, batch)
	m.mu.Unlock()
	m.Wake()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
