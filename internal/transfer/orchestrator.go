package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"accession/internal/config"
	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/poll"
	"accession/internal/queue"
	"accession/internal/services"
	"accession/internal/services/qa"
	processor "accession/internal/services/transfer"
)

// QAService is the slice of the QA service used to stage package files.
type QAService interface {
	PackageURI(ctx context.Context, folder, pkg string) (string, error)
	PackageFileCount(ctx context.Context, folder, pkg string) (int, error)
	MoveToIngest(ctx context.Context, uuid, folder, pkg string) error
	MoveToSFTP(ctx context.Context, uuid string) error
	UploadStatus(ctx context.Context, uuid string, expected int) (string, error)
}

// Processor is the archival transfer processor.
type Processor interface {
	StartTransfer(ctx context.Context, collectionUUID, objectUUID string) (processor.StartResult, error)
	UnapprovedTransfers(ctx context.Context) ([]string, error)
	ApproveTransfer(ctx context.Context, directory string) (processor.ApproveResult, error)
	TransferStatus(ctx context.Context, transferUUID string) (processor.Status, error)
	ClearTransfer(ctx context.Context, transferUUID string) error
	IngestStatus(ctx context.Context, sipUUID string) (processor.Status, error)
	ClearIngest(ctx context.Context, sipUUID string) error
}

// Orchestrator implements ingest.Transferer.
type Orchestrator struct {
	qa        QAService
	processor Processor
	poll      config.PollSettings
	newUUID   func() string
	logger    *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithUUIDSource replaces the object UUID generator.
func WithUUIDSource(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newUUID = fn
		}
	}
}

// New constructs an orchestrator using the given polling limits.
func New(qaService QAService, proc Processor, settings config.PollSettings, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		qa:        qaService,
		processor: proc,
		poll:      settings,
		newUUID:   uuid.NewString,
		logger:    logging.NewComponentLogger(logger, "transfer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run advances run until INGEST_COMPLETE.
func (o *Orchestrator) Run(ctx context.Context, run *ingest.Run) error {
	ctx = services.WithStage(ctx, "transfer")
	steps := []struct {
		done queue.Status
		fn   func(context.Context, *ingest.Run) error
	}{
		{queue.StatusMetadataURISaved, o.resolveMetadata},
		{queue.StatusUploading, o.stageFiles},
		{queue.StatusUploadComplete, o.upload},
		{queue.StatusTransferStarted, o.startTransfer},
		{queue.StatusTransferApproved, o.approveTransfer},
		{queue.StatusIngestInProgress, o.awaitTransfer},
		{queue.StatusIngestComplete, o.awaitIngest},
	}
	if run.Reached(queue.StatusProcessing) && !run.Reached(queue.StatusIngestComplete) {
		logging.WithContext(run.Context(ctx), o.logger).Info("resuming transfer",
			logging.Event("transfer_resumed"),
			logging.Status(string(run.Status)),
		)
	}
	for _, step := range steps {
		if run.Reached(step.done) {
			continue
		}
		if err := step.fn(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) resolveMetadata(ctx context.Context, run *ingest.Run) error {
	run.Advance(ctx, queue.StatusProcessing, nil)

	objectUUID := o.newUUID()
	uri, err := o.qa.PackageURI(ctx, run.Batch, run.Package)
	if err != nil {
		return ingest.Reason("Unable to read package metadata URI", err)
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ingest.Reason("Package metadata URI is empty",
			services.Wrap(services.ErrValidation, "transfer", "package uri", run.Package, nil))
	}
	run.ObjectUUID = objectUUID
	run.MetadataURI = uri
	run.Advance(ctx, queue.StatusMetadataURISaved, queue.Fields{
		queue.ColObjectUUID:  objectUUID,
		queue.ColMetadataURI: uri,
	})
	return nil
}

func (o *Orchestrator) stageFiles(ctx context.Context, run *ingest.Run) error {
	count, err := o.qa.PackageFileCount(ctx, run.Batch, run.Package)
	if err != nil {
		return ingest.Reason("Unable to count package files", err)
	}
	if err := o.qa.MoveToIngest(ctx, run.ObjectUUID, run.Batch, run.Package); err != nil {
		return ingest.Reason("Unable to move package to ingest", err)
	}
	run.FileCount = count
	run.Advance(ctx, queue.StatusUploading, queue.Fields{queue.ColFileCount: count})
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, run *ingest.Run) error {
	if err := o.qa.MoveToSFTP(ctx, run.ObjectUUID); err != nil {
		return ingest.Reason("Unable to start package upload", err)
	}
	err := poll.Until(ctx, o.options(o.poll.Upload), func(ctx context.Context) (bool, error) {
		message, err := o.qa.UploadStatus(ctx, run.ObjectUUID, run.FileCount)
		if err != nil {
			return false, err
		}
		return strings.EqualFold(strings.TrimSpace(message), qa.UploadComplete), nil
	})
	if err != nil {
		return waitFailure("upload", err)
	}
	run.Advance(ctx, queue.StatusUploadComplete, nil)
	return nil
}

func (o *Orchestrator) startTransfer(ctx context.Context, run *ingest.Run) error {
	result, err := o.processor.StartTransfer(ctx, run.CollectionUUID, run.ObjectUUID)
	if err != nil {
		return ingest.Reason("Unable to start transfer", err)
	}
	folder := TransferFolder(result.Path)
	if !result.Copied() || folder == "" {
		return ingest.Reason("Transfer was not started",
			services.Wrap(services.ErrRemoteCall, "transfer", "start transfer", result.Message, nil))
	}
	run.TransferFolder = folder
	run.Advance(ctx, queue.StatusTransferStarted, queue.Fields{queue.ColTransferFolder: folder})
	return nil
}

func (o *Orchestrator) approveTransfer(ctx context.Context, run *ingest.Run) error {
	run.Advance(ctx, queue.StatusTransferInProgress, nil)

	err := poll.Until(ctx, o.options(o.poll.Approval), func(ctx context.Context) (bool, error) {
		pending, err := o.processor.UnapprovedTransfers(ctx)
		if err != nil {
			return false, err
		}
		for _, dir := range pending {
			if strings.Trim(dir, "/") == run.TransferFolder {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return waitFailure("transfer approval", err)
	}

	approved, err := o.processor.ApproveTransfer(ctx, run.TransferFolder)
	if err != nil {
		return ingest.Reason("Unable to approve transfer", err)
	}
	if strings.TrimSpace(approved.UUID) == "" {
		return ingest.Reason("Unable to approve transfer",
			services.Wrap(services.ErrDataIntegrity, "transfer", "approve transfer", "processor returned no transfer uuid", nil))
	}
	run.TransferUUID = approved.UUID
	run.Advance(ctx, queue.StatusTransferApproved, queue.Fields{queue.ColTransferUUID: approved.UUID})
	return nil
}

func (o *Orchestrator) awaitTransfer(ctx context.Context, run *ingest.Run) error {
	var final processor.Status
	err := poll.Until(ctx, o.options(o.poll.Transfer), func(ctx context.Context) (bool, error) {
		status, err := o.processor.TransferStatus(ctx, run.TransferUUID)
		if err != nil {
			return false, err
		}
		o.noteMicroService(ctx, run, status)
		if status.Failed() {
			return false, unitFailed("transfer", run.TransferUUID, status)
		}
		if status.Complete() {
			final = status
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return waitFailure("transfer", err)
	}
	if strings.TrimSpace(final.SIPUUID) == "" {
		return ingest.Reason("Transfer completed without an ingest unit",
			services.Wrap(services.ErrDataIntegrity, "transfer", "transfer status", "missing sip uuid", nil))
	}

	if err := o.processor.ClearTransfer(ctx, run.TransferUUID); err != nil {
		o.clearFailed(run, "transfer", err)
	}
	run.SIPUUID = final.SIPUUID
	run.Advance(ctx, queue.StatusIngestInProgress, queue.Fields{queue.ColSIPUUID: final.SIPUUID})
	return nil
}

func (o *Orchestrator) awaitIngest(ctx context.Context, run *ingest.Run) error {
	err := poll.Until(ctx, o.options(o.poll.Ingest), func(ctx context.Context) (bool, error) {
		status, err := o.processor.IngestStatus(ctx, run.SIPUUID)
		if err != nil {
			return false, err
		}
		o.noteMicroService(ctx, run, status)
		if status.Failed() {
			return false, unitFailed("ingest", run.SIPUUID, status)
		}
		return status.Complete(), nil
	})
	if err != nil {
		return waitFailure("ingest", err)
	}
	if err := o.processor.ClearIngest(ctx, run.SIPUUID); err != nil {
		o.clearFailed(run, "ingest", err)
	}
	run.Advance(ctx, queue.StatusIngestComplete, nil)
	return nil
}

func (o *Orchestrator) options(interval time.Duration) poll.Options {
	return poll.Options{
		Interval:    interval,
		MaxAttempts: o.poll.MaxAttempts,
		Deadline:    o.poll.Deadline,
	}
}

func (o *Orchestrator) noteMicroService(ctx context.Context, run *ingest.Run, status processor.Status) {
	current := strings.TrimSpace(status.MicroService)
	if current == "" || current == run.MicroService {
		return
	}
	run.MicroService = current
	run.Note(ctx, queue.Fields{queue.ColMicroService: current})
	run.Logger().Debug("processor micro-service changed",
		logging.String("micro_service", current),
		logging.String("unit_status", status.Status),
	)
}

func (o *Orchestrator) clearFailed(run *ingest.Run, unit string, err error) {
	logging.WarnWithContext(run.Logger(), "processor dashboard entry not cleared", "processor_clear_failed",
		logging.String("unit", unit),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "remove the entry from the processor dashboard by hand"),
		logging.String(logging.FieldImpact, "dashboard clutter only"),
	)
}

// TransferFolder returns the last non-empty segment of the path reported by
// the processor when a transfer starts.
func TransferFolder(reported string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(reported), "/")
	if trimmed == "" {
		return ""
	}
	base := path.Base(trimmed)
	if base == "/" || base == "." {
		return ""
	}
	return base
}

func unitFailed(unit, id string, status processor.Status) error {
	detail := fmt.Sprintf("%s %s reported %s", unit, id, strings.ToUpper(status.Status))
	if status.MicroService != "" {
		detail += " at " + status.MicroService
	}
	return ingest.Reason(fmt.Sprintf("The %s failed in the transfer processor", unit),
		fmt.Errorf("%w: %s", ingest.ErrUnitFailed, detail))
}

// waitFailure gives exhausted waits an operator-facing reason; everything
// else (cancellation, collaborator errors, unit failures) passes through.
func waitFailure(phase string, err error) error {
	switch {
	case errors.Is(err, poll.ErrExhausted):
		return ingest.Reason("Timed out waiting for "+phase, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var reason *ingest.ReasonError
	if errors.As(err, &reason) {
		return err
	}
	return ingest.Reason("Unable to check "+phase+" status", err)
}
