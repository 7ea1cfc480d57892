package workflow

import (
	"context"
	"time"

	"accession/internal/logging"
	"accession/internal/queue"
)

// StatusSummary is a point-in-time view of the manager.
type StatusSummary struct {
	Running       bool                 `json:"running"`
	AutoStart     bool                 `json:"auto_start"`
	MaxConcurrent int                  `json:"max_concurrent_batches"`
	ActiveBatches map[string]time.Time `json:"active_batches"`
	LastBatch     string               `json:"last_batch,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	QueueStats    map[queue.Status]int `json:"queue_stats"`
	Health        []ComponentHealth    `json:"health,omitempty"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:       m.running,
		AutoStart:     m.autoStart,
		MaxConcurrent: m.maxConcurrent,
		LastBatch:     m.lastBatch,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	checks := m.checks
	m.mu.RUnlock()

	summary.ActiveBatches = m.driver.Running()
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats

	for _, check := range checks {
		summary.Health = append(summary.Health, check(ctx))
	}
	return summary
}
