package api

import (
	"encoding/json"
	"slices"
	"time"

	"accession/internal/queue"
	"accession/internal/workflow"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record is a queue record in transport form.
type Record struct {
	ID             int64           `json:"id"`
	Batch          string          `json:"batch"`
	Package        string          `json:"package"`
	Status         string          `json:"status"`
	Terminal       bool            `json:"terminal"`
	Outcome        string          `json:"outcome"`
	Error          string          `json:"error,omitempty"`
	CollectionUUID string          `json:"collectionUuid,omitempty"`
	ObjectUUID     string          `json:"objectUuid,omitempty"`
	MetadataURI    string          `json:"metadataUri,omitempty"`
	BatchSize      string          `json:"batchSize,omitempty"`
	FileCount      int             `json:"fileCount,omitempty"`
	TransferUUID   string          `json:"transferUuid,omitempty"`
	SIPUUID        string          `json:"sipUuid,omitempty"`
	DIPPath        string          `json:"dipPath,omitempty"`
	MicroService   string          `json:"microService,omitempty"`
	IndexRecord    json.RawMessage `json:"indexRecord,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`
}

// Batch summarizes one batch.
type Batch struct {
	Batch      string `json:"batch"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	InFlight   int    `json:"inFlight"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	LastStatus string `json:"lastStatus"`
	Error      string `json:"error,omitempty"`
	Running    bool   `json:"running"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// BatchDetail is a batch summary with its records in enqueue order.
type BatchDetail struct {
	Batch
	Records []Record `json:"records"`
}

// EnqueueRequest asks for a batch to be queued. When Packages is empty the
// package list is read from the QA service.
type EnqueueRequest struct {
	Batch    string   `json:"batch"`
	Packages []string `json:"packages,omitempty"`
}

// EnqueueResponse lists the records created.
type EnqueueResponse struct {
	Batch   string   `json:"batch"`
	Records []Record `json:"records"`
}

// StartResponse acknowledges a force-start.
type StartResponse struct {
	Batch   string `json:"batch"`
	Started bool   `json:"started"`
}

// ClearResponse reports how many records a clear removed.
type ClearResponse struct {
	Batch   string `json:"batch,omitempty"`
	Removed int64  `json:"removed"`
}

// BatchListResponse wraps the batch list.
type BatchListResponse struct {
	Batches []Batch `json:"batches"`
}

// ComponentHealth mirrors workflow.ComponentHealth.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes the batch manager.
type WorkflowStatus struct {
	Running       bool              `json:"running"`
	AutoStart     bool              `json:"autoStart"`
	MaxConcurrent int               `json:"maxConcurrentBatches"`
	ActiveBatches []string          `json:"activeBatches"`
	LastBatch     string            `json:"lastBatch,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	QueueStats    map[string]int    `json:"queueStats"`
	Health        []ComponentHealth `json:"health"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	StartedAt    string         `json:"startedAt,omitempty"`
	Workflow     WorkflowStatus `json:"workflow"`
	Background   Background     `json:"background"`
}

// Background summarizes follow-up tasks such as derivative requests.
type Background struct {
	Active    int    `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromRecord converts a queue record.
func FromRecord(rec *queue.Record) Record {
	if rec == nil {
		return Record{}
	}
	return Record{
		ID:             rec.ID,
		Batch:          rec.Batch,
		Package:        rec.Package,
		Status:         string(rec.Status),
		Terminal:       rec.Terminal,
		Outcome:        string(rec.Outcome),
		Error:          rec.Error,
		CollectionUUID: rec.CollectionUUID,
		ObjectUUID:     rec.ObjectUUID,
		MetadataURI:    rec.MetadataURI,
		BatchSize:      rec.BatchSize,
		FileCount:      rec.FileCount,
		TransferUUID:   rec.TransferUUID,
		SIPUUID:        rec.SIPUUID,
		DIPPath:        rec.DIPPath,
		MicroService:   rec.MicroService,
		IndexRecord:    rec.IndexRecord,
		CreatedAt:      formatTime(rec.CreatedAt),
		UpdatedAt:      formatTime(rec.UpdatedAt),
	}
}

// FromRecords converts a slice of queue records.
func FromRecords(records []*queue.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromBatchSummary converts a batch summary.
func FromBatchSummary(summary queue.BatchSummary, running bool) Batch {
	return Batch{
		Batch:      summary.Batch,
		Total:      summary.Total,
		Pending:    summary.Pending,
		InFlight:   summary.InFlight,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		LastStatus: string(summary.LastStatus),
		Error:      summary.Error,
		Running:    running,
		CreatedAt:  formatTime(summary.CreatedAt),
		UpdatedAt:  formatTime(summary.UpdatedAt),
	}
}

// FromStatusSummary converts the workflow manager status.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:       summary.Running,
		AutoStart:     summary.AutoStart,
		MaxConcurrent: summary.MaxConcurrent,
		LastBatch:     summary.LastBatch,
		LastError:     summary.LastError,
		QueueStats:    MergeQueueStats(summary.QueueStats),
		ActiveBatches: make([]string, 0, len(summary.ActiveBatches)),
		Health:        make([]ComponentHealth, 0, len(summary.Health)),
	}
	for name := range summary.ActiveBatches {
		status.ActiveBatches = append(status.ActiveBatches, name)
	}
	slices.Sort(status.ActiveBatches)
	for _, h := range summary.Health {
		status.Health = append(status.Health, ComponentHealth(h))
	}
	return status
}

// MergeQueueStats keys queue counts by status string.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
