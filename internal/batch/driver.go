package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"accession/internal/logging"
	"accession/internal/qagate"
	"accession/internal/queue"
	"accession/internal/services"
)

// ErrBatchRunning is returned when a drain of the batch is already in progress.
var ErrBatchRunning = errors.New("batch already draining")

// Store is the slice of the queue store the driver reads.
type Store interface {
	GetAll(ctx context.Context, match queue.Fields, order queue.Order) ([]*queue.Record, error)
	NextPending(ctx context.Context, batch string) (*queue.Record, error)
	Batch(ctx context.Context, batch string) (*queue.BatchSummary, error)
}

// Gate runs the batch-level QA checks.
type Gate interface {
	Check(ctx context.Context, batch string) (*qagate.Result, error)
}

// Processor runs one record to a terminal state.
type Processor interface {
	Process(ctx context.Context, rec *queue.Record) *queue.Record
}

// Sessions releases collaborator sessions opened while draining.
type Sessions interface {
	EndSession(ctx context.Context) error
}

// Observer is told when a drain starts and when it stops. Finished receives
// the batch summary as stored after the drain.
type Observer interface {
	BatchStarted(batch string)
	BatchFinished(batch string, summary queue.BatchSummary, elapsed time.Duration)
}

// Driver drains batches.
type Driver struct {
	store     Store
	gate      Gate
	processor Processor
	sessions  Sessions
	observers []Observer
	logger    *slog.Logger

	mu      sync.Mutex
	running map[string]time.Time
}

// NewDriver constructs a driver. sessions may be nil.
func NewDriver(store Store, gate Gate, processor Processor, sessions Sessions, logger *slog.Logger, observers ...Observer) *Driver {
	return &Driver{
		store:     store,
		gate:      gate,
		processor: processor,
		sessions:  sessions,
		observers: lo.Compact(observers),
		logger:    logging.NewComponentLogger(logger, "batch"),
		running:   make(map[string]time.Time),
	}
}

// Running lists the batches currently draining with their start times.
func (d *Driver) Running() map[string]time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]time.Time, len(d.running))
	for name, started := range d.running {
		out[name] = started
	}
	return out
}

// IsRunning reports whether batch is draining.
func (d *Driver) IsRunning(batch string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[batch]
	return ok
}

// Drain processes batch until no pending record remains or a package ends
// without success. Package and QA failures are recorded on the queue, not
// returned; Drain only fails for a concurrent drain, a queue read failure,
// or cancellation of ctx.
func (d *Driver) Drain(ctx context.Context, batch string) error {
	if !d.acquire(batch) {
		return fmt.Errorf("%w: %s", ErrBatchRunning, batch)
	}

	ctx = services.WithBatch(ctx, batch)
	logger := logging.WithContext(ctx, d.logger)
	started := time.Now()

	defer d.finish(ctx, logger, batch, started)
	for _, obs := range d.observers {
		obs.BatchStarted(batch)
	}

	records, err := d.store.GetAll(ctx, queue.Fields{queue.ColBatch: batch}, queue.Order{})
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batch, err)
	}
	if len(records) == 0 {
		logger.Info("batch has no records", logging.Event("batch_empty"))
		return nil
	}
	if halted, ok := lo.Find(records, (*queue.Record).Halted); ok {
		logger.Info("batch skipped after earlier failure",
			logging.Event("batch_skipped"),
			logging.Package(halted.Package),
			logging.String("error", halted.Error),
		)
		return nil
	}

	// Packages enqueued under a finished batch name still have to pass QA.
	if lo.SomeBy(records, func(rec *queue.Record) bool { return !rec.Terminal && rec.CollectionUUID == "" }) {
		if _, err := d.gate.Check(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := d.store.NextPending(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("next pending in %s: %w", batch, err)
		}
		if rec == nil {
			logger.Info("batch drained",
				logging.Event("batch_drained"),
				logging.Int("processed", processed),
			)
			return nil
		}

		result := d.processor.Process(ctx, rec)
		processed++
		if err := ctx.Err(); err != nil {
			return err
		}
		if result == nil || result.Outcome != queue.OutcomeSuccess {
			attrs := []logging.Attr{
				logging.Event("batch_stopped"),
				logging.Package(rec.Package),
			}
			if result != nil {
				attrs = append(attrs,
					logging.Status(string(result.Status)),
					logging.String("error", result.Error),
				)
			}
			logger.Warn("batch stopped at failed package", logging.Args(attrs...)...)
			return nil
		}
	}
}

// finish releases batch and ends the shared collaborator session once no
// other drain is using it.
func (d *Driver) finish(ctx context.Context, logger *slog.Logger, batch string, started time.Time) {
	cleanup := context.WithoutCancel(ctx)
	if last := d.release(batch); last && d.sessions != nil {
		if err := d.sessions.EndSession(cleanup); err != nil {
			logger.Debug("metadata session not released", logging.Error(err))
		}
	}
	if len(d.observers) == 0 {
		return
	}
	summary := queue.BatchSummary{Batch: batch}
	if stored, err := d.store.Batch(cleanup, batch); err == nil && stored != nil {
		summary = *stored
	}
	elapsed := time.Since(started)
	for _, obs := range d.observers {
		obs.BatchFinished(batch, summary, elapsed)
	}
}

func (d *Driver) acquire(batch string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.running[batch]; busy {
		return false
	}
	d.running[batch] = time.Now()
	return true
}

// release reports whether batch was the last one draining.
func (d *Driver) release(batch string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, batch)
	return len(d.running) == 0
}
