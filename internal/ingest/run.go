package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/services"
)

// ErrUnitFailed marks a failure reported by the transfer processor itself
// (a transfer or ingest that ended FAILED). Halting with it records status
// FAILED instead of INGEST_HALTED.
var ErrUnitFailed = errors.New("processing unit failed")

// Store is the slice of the queue store a run writes through.
type Store interface {
	UpdateWhere(ctx context.Context, match, patch queue.Fields) (int64, error)
	GetByID(ctx context.Context, id int64) (*queue.Record, error)
}

// Hooks observe run transitions. Every field is optional.
type Hooks struct {
	OnStatus   func(run *Run, status queue.Status)
	OnHalt     func(run *Run, err error)
	OnComplete func(run *Run)
}

// Run is the per-package pipeline context. It is owned by one goroutine for
// the lifetime of the package.
type Run struct {
	RecordID       int64
	Batch          string
	Package        string
	Status         queue.Status
	CollectionUUID string
	CollectionURI  string
	ObjectUUID     string
	MetadataURI    string
	FileCount      int
	TransferFolder string
	TransferUUID   string
	SIPUUID        string
	DIPPath        string
	MicroService   string
	StartedAt      time.Time

	store   Store
	logger  *slog.Logger
	hooks   Hooks
	haltErr error
	done    bool
}

// NewRun seeds a run from a queue record so an interrupted package resumes
// from its last persisted step.
func NewRun(rec *queue.Record, store Store, logger *slog.Logger, hooks Hooks) *Run {
	if logger == nil {
		logger = logging.NewNop()
	}
	run := &Run{
		RecordID:       rec.ID,
		Batch:          rec.Batch,
		Package:        rec.Package,
		Status:         rec.Status,
		CollectionUUID: rec.CollectionUUID,
		CollectionURI:  rec.CollectionURI,
		ObjectUUID:     rec.ObjectUUID,
		MetadataURI:    rec.MetadataURI,
		FileCount:      rec.FileCount,
		TransferFolder: rec.TransferFolder,
		TransferUUID:   rec.TransferUUID,
		SIPUUID:        rec.SIPUUID,
		DIPPath:        rec.DIPPath,
		MicroService:   rec.MicroService,
		StartedAt:      time.Now(),
		store:          store,
		hooks:          hooks,
		done:           rec.Terminal,
	}
	run.logger = logger.With(
		logging.Batch(rec.Batch),
		logging.Package(rec.Package),
		logging.RecordID(rec.ID),
	)
	return run
}

// Context stamps ctx with the run's identifiers for downstream logging.
func (r *Run) Context(ctx context.Context) context.Context {
	ctx = services.WithBatch(ctx, r.Batch)
	ctx = services.WithPackage(ctx, r.Package)
	return services.WithRecordID(ctx, r.RecordID)
}

// Logger returns the run-scoped logger.
func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Reached reports whether the run already persisted status or a later one.
func (r *Run) Reached(status queue.Status) bool {
	return r.Status.Rank() >= status.Rank() && status.Rank() >= 0
}

// Terminal reports whether the run halted or completed.
func (r *Run) Terminal() bool {
	return r.done
}

// Err returns the error the run halted with, if any.
func (r *Run) Err() error {
	return r.haltErr
}

// Advance persists a forward status change together with the fields the step
// produced. Write failures are logged; the pipeline continues.
func (r *Run) Advance(ctx context.Context, status queue.Status, fields queue.Fields) {
	patch := make(queue.Fields, len(fields)+1)
	for col, value := range fields {
		patch[col] = value
	}
	patch[queue.ColStatus] = status
	r.write(ctx, patch)

	if status == r.Status {
		return
	}
	r.logger.Info("package advanced",
		logging.Event("status_change"),
		logging.String("from", string(r.Status)),
		logging.Status(string(status)),
	)
	r.Status = status
	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(r, status)
	}
}

// Note persists progress fields without changing status, e.g. the
// micro-service reported by a poll tick.
func (r *Run) Note(ctx context.Context, fields queue.Fields) {
	if len(fields) == 0 {
		return
	}
	r.write(ctx, fields)
}

// Halt records err on the queue record and marks it terminal and failed.
// Only the first halt is recorded.
func (r *Run) Halt(ctx context.Context, err error) {
	if r.done {
		return
	}
	if err == nil {
		err = errors.New("halted without error detail")
	}
	r.done = true
	r.haltErr = err

	patch := HaltFields(err)
	r.write(ctx, patch)
	r.Status = patch[queue.ColStatus].(queue.Status)

	attrs := []logging.Attr{
		logging.Status(string(r.Status)),
		logging.ErrorKind(err),
		logging.String(logging.FieldErrorHint, haltHint(err)),
		logging.Error(err),
	}
	var reason *ReasonError
	if errors.As(err, &reason) && reason.Err != nil {
		attrs = append(attrs, logging.String("cause", reason.Err.Error()))
	}
	logging.ErrorWithContext(r.logger, "package halted", "package_halted", attrs...)
	if r.hooks.OnHalt != nil {
		r.hooks.OnHalt(r, err)
	}
}

// Complete marks the record COMPLETE, terminal and successful.
func (r *Run) Complete(ctx context.Context, fields queue.Fields) {
	if r.done {
		return
	}
	patch := make(queue.Fields, len(fields)+3)
	for col, value := range fields {
		patch[col] = value
	}
	patch[queue.ColStatus] = queue.StatusComplete
	patch[queue.ColTerminal] = true
	patch[queue.ColOutcome] = queue.OutcomeSuccess
	r.write(ctx, patch)

	r.done = true
	r.Status = queue.StatusComplete
	r.logger.Info("package complete",
		logging.Event("package_complete"),
		logging.String("object_uuid", r.ObjectUUID),
		logging.Duration("elapsed", time.Since(r.StartedAt)),
	)
	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(r, queue.StatusComplete)
	}
	if r.hooks.OnComplete != nil {
		r.hooks.OnComplete(r)
	}
}

// Snapshot renders the run as a queue record, used when the stored record
// cannot be read back.
func (r *Run) Snapshot() *queue.Record {
	rec := &queue.Record{
		ID:             r.RecordID,
		Batch:          r.Batch,
		Package:        r.Package,
		Status:         r.Status,
		Terminal:       r.done,
		Outcome:        queue.OutcomePending,
		CollectionUUID: r.CollectionUUID,
		CollectionURI:  r.CollectionURI,
		ObjectUUID:     r.ObjectUUID,
		MetadataURI:    r.MetadataURI,
		FileCount:      r.FileCount,
		TransferFolder: r.TransferFolder,
		TransferUUID:   r.TransferUUID,
		SIPUUID:        r.SIPUUID,
		DIPPath:        r.DIPPath,
		MicroService:   r.MicroService,
	}
	switch {
	case r.haltErr != nil:
		rec.Outcome = queue.OutcomeFailed
		rec.Error = r.haltErr.Error()
	case r.done:
		rec.Outcome = queue.OutcomeSuccess
	}
	return rec
}

func (r *Run) write(ctx context.Context, patch queue.Fields) {
	if r.store == nil {
		return
	}
	n, err := r.store.UpdateWhere(ctx, queue.Fields{queue.ColID: r.RecordID, queue.ColTerminal: false}, patch)
	switch {
	case err != nil:
		logging.WarnWithContext(r.logger, "queue update failed", "queue_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "queue state may lag behind remote progress"),
			logging.String(logging.FieldImpact, "status not persisted"),
		)
	case n == 0:
		logging.WarnWithContext(r.logger, "queue record not updated", "queue_write_skipped",
			logging.String(logging.FieldErrorHint, "record was cleared or already terminal"),
			logging.String(logging.FieldImpact, "status not persisted"),
		)
	}
}

// HaltFields is the patch that halts a record with err. Processor-reported
// failures record FAILED; everything else records INGEST_HALTED.
func HaltFields(err error) queue.Fields {
	status := queue.StatusHalted
	if errors.Is(err, ErrUnitFailed) {
		status = queue.StatusFailed
	}
	return queue.Fields{
		queue.ColStatus:   status,
		queue.ColError:    strings.TrimSpace(err.Error()),
		queue.ColTerminal: true,
		queue.ColOutcome:  queue.OutcomeFailed,
	}
}

func haltHint(err error) string {
	switch services.Classify(err) {
	case services.KindValidation:
		return "fix the batch folder and re-enqueue"
	case services.KindTimeout:
		return "check the transfer processor dashboard, then clear and re-enqueue"
	case services.KindDataIntegrity:
		return "correct the descriptive record and re-enqueue"
	case services.KindPersistence:
		return "check repository database connectivity"
	default:
		return "check collaborator availability and re-enqueue the package"
	}
}
