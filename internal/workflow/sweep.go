package workflow

import (
	"context"
	"log/slog"
	"time"

	"accession/internal/logging"
	"accession/internal/queue"
)

// SweepStore is the slice of the queue store the sweeper reads.
type SweepStore interface {
	Stale(ctx context.Context, olderThan time.Duration) ([]*queue.Record, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// QueueGauge receives queue counts after each sweep.
type QueueGauge interface {
	ObserveQueue(stats map[queue.Status]int)
}

// Sweeper reports in-flight records that stopped progressing. It never
// changes records: a stuck package may still be waiting on a slow
// collaborator, so the operator decides.
type Sweeper struct {
	store      SweepStore
	gauge      QueueGauge
	logger     *slog.Logger
	staleAfter time.Duration
}

// NewSweeper builds a sweeper. gauge may be nil.
func NewSweeper(store SweepStore, gauge QueueGauge, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		gauge:      gauge,
		logger:     logging.NewComponentLogger(logger, "sweep"),
		staleAfter: staleAfter,
	}
}

// Run performs one sweep and returns the stale records found.
func (s *Sweeper) Run(ctx context.Context) ([]*queue.Record, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if s.gauge != nil {
		s.gauge.ObserveQueue(stats)
	}
	if s.staleAfter <= 0 {
		return nil, nil
	}
	stale, err := s.store.Stale(ctx, s.staleAfter)
	if err != nil {
		return nil, err
	}
	for _, rec := range stale {
		logging.WarnWithContext(s.logger, "in-flight package has not progressed", "package_stale",
			logging.Batch(rec.Batch),
			logging.Package(rec.Package),
			logging.Status(string(rec.Status)),
			logging.String("micro_service", rec.MicroService),
			logging.Duration("idle", time.Since(rec.UpdatedAt).Round(time.Second)),
			logging.String(logging.FieldErrorHint, "check the collaborator for this step; force-start the batch to resume"),
		)
	}
	return stale, nil
}
