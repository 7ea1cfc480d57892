// Package metrics exposes Prometheus collectors for batch and package
// progress. A Recorder owns its registry so several can coexist in tests.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accession/internal/ingest"
	"accession/internal/queue"
)

// Recorder collects ingest metrics.
type Recorder struct {
	registry *prometheus.Registry

	packages      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	activeBatches prometheus.Gauge
	batchDuration *prometheus.HistogramVec
	queueRecords  *prometheus.GaugeVec

	mu   sync.Mutex
	last map[int64]time.Time
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		packages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accession_packages_total",
			Help: "Packages that reached a terminal state, by outcome",
		}, []string{"outcome"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accession_status_transitions_total",
			Help: "Package status transitions written to the queue",
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accession_stage_duration_seconds",
			Help:    "Time spent reaching each package status from the previous one",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"status"}),
		activeBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accession_batches_active",
			Help: "Batches currently draining",
		}),
		batchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accession_batch_duration_seconds",
			Help:    "Wall time of one batch drain, by result",
			Buckets: prometheus.ExponentialBuckets(30, 4, 8),
		}, []string{"result"}),
		queueRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "accession_queue_records",
			Help: "Queue records by status at the last sweep",
		}, []string{"status"}),
		last: make(map[int64]time.Time),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Hooks returns pipeline hooks that feed the package collectors.
func (r *Recorder) Hooks() ingest.Hooks {
	return ingest.Hooks{
		OnStatus: func(run *ingest.Run, status queue.Status) {
			r.transitions.WithLabelValues(string(status)).Inc()
			now := time.Now()
			r.mu.Lock()
			prev, ok := r.last[run.RecordID]
			r.last[run.RecordID] = now
			r.mu.Unlock()
			if ok {
				r.stageDuration.WithLabelValues(string(status)).Observe(now.Sub(prev).Seconds())
			}
		},
		OnHalt: func(run *ingest.Run, _ error) {
			r.packages.WithLabelValues(string(queue.OutcomeFailed)).Inc()
			r.forget(run.RecordID)
		},
		OnComplete: func(run *ingest.Run) {
			r.packages.WithLabelValues(string(queue.OutcomeSuccess)).Inc()
			r.forget(run.RecordID)
		},
	}
}

func (r *Recorder) forget(id int64) {
	r.mu.Lock()
	delete(r.last, id)
	r.mu.Unlock()
}

// BatchStarted implements batch.Observer.
func (r *Recorder) BatchStarted(string) {
	r.activeBatches.Inc()
}

// BatchFinished implements batch.Observer.
func (r *Recorder) BatchFinished(_ string, summary queue.BatchSummary, elapsed time.Duration) {
	r.activeBatches.Dec()
	result := "stopped"
	switch {
	case summary.Halted():
		result = "halted"
	case summary.Done():
		result = "complete"
	}
	r.batchDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveQueue replaces the per-status queue gauges with stats.
func (r *Recorder) ObserveQueue(stats map[queue.Status]int) {
	r.queueRecords.Reset()
	for status, count := range stats {
		r.queueRecords.WithLabelValues(string(status)).Set(float64(count))
	}
}
