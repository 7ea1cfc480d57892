package queue

import (
	"encoding/json"
	"time"
)

// Status is the last pipeline step a record completed.
type Status string

const (
	StatusQueued             Status = "QUEUED"
	StatusProcessing         Status = "PROCESSING"
	StatusMetadataURISaved   Status = "METADATA_URI_SAVED"
	StatusUploading          Status = "UPLOADING"
	StatusUploadComplete     Status = "UPLOAD_COMPLETE"
	StatusTransferStarted    Status = "TRANSFER_STARTED"
	StatusTransferInProgress Status = "TRANSFER_IN_PROGRESS"
	StatusTransferApproved   Status = "TRANSFER_APPROVED"
	StatusIngestInProgress   Status = "INGEST_IN_PROGRESS"
	StatusIngestComplete     Status = "INGEST_COMPLETE"
	StatusMetadataAssembled  Status = "METADATA_ASSEMBLED"
	StatusComplete           Status = "COMPLETE"
	StatusHalted             Status = "INGEST_HALTED"
	StatusFailed             Status = "FAILED"
)

// pipelineOrder is the forward order of non-terminal statuses.
var pipelineOrder = []Status{
	StatusQueued,
	StatusProcessing,
	StatusMetadataURISaved,
	StatusUploading,
	StatusUploadComplete,
	StatusTransferStarted,
	StatusTransferInProgress,
	StatusTransferApproved,
	StatusIngestInProgress,
	StatusIngestComplete,
	StatusMetadataAssembled,
	StatusComplete,
}

// PipelineOrder returns the forward sequence of statuses a package passes through.
func PipelineOrder() []Status {
	return append([]Status(nil), pipelineOrder...)
}

// Rank returns the position of s in the forward pipeline, or -1 for halt statuses.
func (s Status) Rank() int {
	for i, candidate := range pipelineOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Outcome is the final disposition of a record. Only terminal records carry
// success or failed.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Record is one package's orchestration state within a batch.
type Record struct {
	ID             int64
	Batch          string
	Package        string
	Status         Status
	Terminal       bool
	Outcome        Outcome
	Error          string
	CollectionUUID string
	CollectionURI  string
	ObjectUUID     string
	MetadataURI    string
	BatchSize      string
	FileCount      int
	TransferFolder string
	TransferUUID   string
	SIPUUID        string
	DIPPath        string
	MicroService   string
	MasterData     json.RawMessage
	ObjectParts    json.RawMessage
	TranscriptData json.RawMessage
	IndexRecord    json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Pending reports whether the record still awaits processing or is in flight.
func (r *Record) Pending() bool {
	return r != nil && !r.Terminal
}

// Halted reports whether the record stopped with a failure.
func (r *Record) Halted() bool {
	return r != nil && r.Terminal && r.Outcome == OutcomeFailed
}

// BatchSummary aggregates the records of one batch.
type BatchSummary struct {
	Batch      string
	Total      int
	Pending    int
	InFlight   int
	Succeeded  int
	Failed     int
	LastStatus Status
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Done reports whether every record in the batch is terminal.
func (b BatchSummary) Done() bool {
	return b.Total > 0 && b.Pending == 0 && b.InFlight == 0
}

// Halted reports whether any record in the batch failed.
func (b BatchSummary) Halted() bool {
	return b.Failed > 0
}

// HealthSummary describes aggregated queue counts per outcome.
type HealthSummary struct {
	Total     int
	Pending   int
	InFlight  int
	Succeeded int
	Failed    int
}

// DatabaseHealth captures diagnostic details about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
