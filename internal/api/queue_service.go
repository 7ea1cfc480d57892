package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"accession/internal/queue"
	"accession/internal/services"
)

// ErrBatchBusy is returned when a batch that is draining would be cleared.
var ErrBatchBusy = errors.New("batch is draining")

// QueueStore abstracts the queue operations the API performs.
type QueueStore interface {
	Enqueue(ctx context.Context, batch string, packages []string) ([]*queue.Record, error)
	GetAll(ctx context.Context, match queue.Fields, order queue.Order) ([]*queue.Record, error)
	Batches(ctx context.Context) ([]queue.BatchSummary, error)
	Batch(ctx context.Context, batch string) (*queue.BatchSummary, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	Clear(ctx context.Context) (int64, error)
	ClearBatch(ctx context.Context, batch string) (int64, error)
}

// PackageLister lists the packages in a batch folder.
type PackageLister interface {
	ListPackages(ctx context.Context, folder string) ([]string, error)
}

// RunningBatches reports which batches are draining.
type RunningBatches interface {
	IsRunning(batch string) bool
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store    QueueStore
	packages PackageLister
	running  RunningBatches
}

// NewQueueService constructs a QueueService. packages and running may be nil.
func NewQueueService(store QueueStore, packages PackageLister, running RunningBatches) *QueueService {
	return &QueueService{store: store, packages: packages, running: running}
}

// Enqueue queues packages under batch. An empty package list is read from
// the QA service.
func (s *QueueService) Enqueue(ctx context.Context, batch string, packages []string) (EnqueueResponse, error) {
	batch = strings.TrimSpace(batch)
	if batch == "" {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", "batch name required", nil)
	}
	if len(packages) == 0 {
		if s.packages == nil {
			return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", "packages required", nil)
		}
		listed, err := s.packages.ListPackages(ctx, batch)
		if err != nil {
			return EnqueueResponse{}, fmt.Errorf("list packages for %s: %w", batch, err)
		}
		packages = listed
	}
	if len(lo.Compact(packages)) == 0 {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", "no packages found for "+batch, nil)
	}
	records, err := s.store.Enqueue(ctx, batch, packages)
	if err != nil {
		return EnqueueResponse{}, err
	}
	return EnqueueResponse{Batch: batch, Records: FromRecords(records)}, nil
}

// Batches lists every batch, oldest first.
func (s *QueueService) Batches(ctx context.Context) ([]Batch, error) {
	summaries, err := s.store.Batches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Batch, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, FromBatchSummary(summary, s.isRunning(summary.Batch)))
	}
	return out, nil
}

// Describe returns one batch with its records, or nil when it has none.
func (s *QueueService) Describe(ctx context.Context, batch string) (*BatchDetail, error) {
	summary, err := s.store.Batch(ctx, batch)
	if err != nil || summary == nil {
		return nil, err
	}
	records, err := s.store.GetAll(ctx, queue.Fields{queue.ColBatch: batch}, queue.Order{})
	if err != nil {
		return nil, err
	}
	return &BatchDetail{
		Batch:   FromBatchSummary(*summary, s.isRunning(batch)),
		Records: FromRecords(records),
	}, nil
}

// Stats returns record counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Clear removes one batch, or every record when batch is empty. Draining
// batches are refused.
func (s *QueueService) Clear(ctx context.Context, batch string) (ClearResponse, error) {
	batch = strings.TrimSpace(batch)
	if batch != "" {
		if s.isRunning(batch) {
			return ClearResponse{}, fmt.Errorf("%w: %s", ErrBatchBusy, batch)
		}
		removed, err := s.store.ClearBatch(ctx, batch)
		return ClearResponse{Batch: batch, Removed: removed}, err
	}
	summaries, err := s.store.Batches(ctx)
	if err != nil {
		return ClearResponse{}, err
	}
	for _, summary := range summaries {
		if s.isRunning(summary.Batch) {
			return ClearResponse{}, fmt.Errorf("%w: %s", ErrBatchBusy, summary.Batch)
		}
	}
	removed, err := s.store.Clear(ctx)
	return ClearResponse{Removed: removed}, err
}

func (s *QueueService) isRunning(batch string) bool {
	return s.running != nil && s.running.IsRunning(batch)
}
