package queue

import (
	"context"
	"fmt"
	"time"
)

// Batches summarizes every batch in the queue, oldest first.
func (s *Store) Batches(ctx context.Context) ([]BatchSummary, error) {
	records, err := s.GetAll(ctx, nil, Order{})
	if err != nil {
		return nil, err
	}
	return summarize(records), nil
}

// Batch summarizes one batch. It returns nil when the batch has no records.
func (s *Store) Batch(ctx context.Context, batch string) (*BatchSummary, error) {
	records, err := s.GetAll(ctx, Fields{ColBatch: batch}, Order{})
	if err != nil {
		return nil, err
	}
	summaries := summarize(records)
	if len(summaries) == 0 {
		return nil, nil
	}
	return &summaries[0], nil
}

// PendingBatches lists batches that still have non-terminal records and have
// not halted, oldest first.
func (s *Store) PendingBatches(ctx context.Context) ([]string, error) {
	summaries, err := s.Batches(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, summary := range summaries {
		if summary.Halted() || summary.Done() {
			continue
		}
		names = append(names, summary.Batch)
	}
	return names, nil
}

// Stale returns in-flight records whose last update is older than the cutoff.
func (s *Store) Stale(ctx context.Context, olderThan time.Duration) ([]*Record, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("stale threshold must be positive")
	}
	records, err := s.GetAll(ctx, Fields{ColTerminal: false}, Order{})
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-olderThan)
	var stale []*Record
	for _, rec := range records {
		if rec.Status == StatusQueued {
			continue
		}
		if rec.UpdatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
	}
	return stale, nil
}

func summarize(records []*Record) []BatchSummary {
	index := make(map[string]int)
	var summaries []BatchSummary
	for _, rec := range records {
		pos, ok := index[rec.Batch]
		if !ok {
			pos = len(summaries)
			index[rec.Batch] = pos
			summaries = append(summaries, BatchSummary{Batch: rec.Batch, CreatedAt: rec.CreatedAt})
		}
		summary := &summaries[pos]
		summary.Total++
		switch {
		case !rec.Terminal && rec.Status == StatusQueued:
			summary.Pending++
		case !rec.Terminal:
			summary.InFlight++
		case rec.Outcome == OutcomeSuccess:
			summary.Succeeded++
		default:
			summary.Failed++
			if summary.Error == "" {
				summary.Error = rec.Error
			}
		}
		if rec.CreatedAt.Before(summary.CreatedAt) {
			summary.CreatedAt = rec.CreatedAt
		}
		if !rec.UpdatedAt.Before(summary.UpdatedAt) {
			summary.UpdatedAt = rec.UpdatedAt
			summary.LastStatus = rec.Status
		}
	}
	return summaries
}
