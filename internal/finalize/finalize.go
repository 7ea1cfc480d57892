package finalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"accession/internal/background"
	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/services"
	"accession/internal/services/storage"
)

// Repository persists finished records.
type Repository interface {
	ObjectByUUID(ctx context.Context, id string) (*repository.Object, error)
	SaveObject(ctx context.Context, obj *repository.Object) error
}

// Indexer publishes documents to the search index.
type Indexer interface {
	Index(ctx context.Context, id string, document any) error
}

// Handles mints persistent identifiers.
type Handles interface {
	CreateHandle(ctx context.Context, uuid string) (string, error)
}

// Converter requests derivative copies of stored objects.
type Converter interface {
	Convert(ctx context.Context, req storage.ConvertRequest) error
}

// Scheduler runs follow-up work after the record is complete.
type Scheduler interface {
	Go(name, subject string, task background.Task) error
}

// Options controls derivative scheduling.
type Options struct {
	Derivatives bool
	MimeTypes   []string
	Interval    time.Duration
}

// Deps bundles the finalizer's collaborators. Converter and Scheduler may be
// nil when derivatives are disabled.
type Deps struct {
	Repository Repository
	Index      Indexer
	Handles    Handles
	Converter  Converter
	Scheduler  Scheduler
}

// Finalizer builds, persists and publishes the repository record of a
// package and completes its run.
type Finalizer struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New constructs a finalizer.
func New(deps Deps, opts Options, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "finalize"),
	}
}

// Finalize persists the repository record and marks the run COMPLETE. A
// persistence failure is returned so the pipeline halts the package; an
// index failure is logged and the package still completes.
func (f *Finalizer) Finalize(ctx context.Context, run *ingest.Run, asm *ingest.Assembly) error {
	if asm == nil || asm.Descriptive == nil {
		return services.Wrap(services.ErrDataIntegrity, "finalize", "build record", "assembly missing descriptive metadata", nil)
	}
	ctx = services.WithStage(ctx, "finalize")
	logger := run.Logger()

	// A run resumed after the record was saved keeps the stored record and
	// its handle.
	obj, err := f.deps.Repository.ObjectByUUID(ctx, run.ObjectUUID)
	if err != nil {
		return ingest.Reason("Unable to read repository record", err)
	}
	saved := obj != nil
	if !saved {
		handleURL, err := f.deps.Handles.CreateHandle(ctx, run.ObjectUUID)
		if err != nil {
			return ingest.Reason("Unable to create object handle", err)
		}
		if obj, err = BuildObject(run, asm, handleURL); err != nil {
			return err
		}
	} else {
		logger.Info("repository record already saved",
			logging.Event("finalize_resumed"),
			logging.String("object_uuid", obj.UUID),
		)
	}

	projection := BuildIndexRecord(obj, asm.Descriptive)
	display, err := projection.JSON()
	if err != nil {
		return services.Wrap(services.ErrDataIntegrity, "finalize", "encode index record", "", err)
	}
	if !saved {
		obj.DisplayRecord = string(display)
		if err := f.deps.Repository.SaveObject(ctx, obj); err != nil {
			return ingest.Reason("Unable to save repository record", err)
		}
	}

	if err := f.deps.Index.Index(ctx, obj.UUID, projection); err != nil {
		logging.WarnWithContext(logger, "search index update failed", "index_failed",
			logging.Error(err),
			logging.String("object_uuid", obj.UUID),
			logging.String(logging.FieldErrorHint, "reindex the object from its stored display record"),
			logging.String(logging.FieldImpact, "object not searchable until reindexed"),
		)
	}

	f.scheduleDerivatives(run, asm)

	run.Complete(ctx, queue.Fields{queue.ColIndexRecord: json.RawMessage(display)})
	return nil
}

// BuildObject maps a run and its assembly onto an unpublished repository
// record. DisplayRecord is left for the caller.
func BuildObject(run *ingest.Run, asm *ingest.Assembly, handleURL string) (*repository.Object, error) {
	desc := asm.Descriptive
	parts, err := json.Marshal(asm.Parts)
	if err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "finalize", "encode parts", "", err)
	}
	obj := &repository.Object{
		UUID:                 run.ObjectUUID,
		ObjectType:           repository.TypeObject,
		IsMemberOfCollection: run.CollectionUUID,
		Handle:               handleURL,
		URI:                  run.MetadataURI,
		Mods:                 string(desc.Raw),
		Thumbnail:            asm.Master.Thumbnail,
		Master:               asm.Master.Object,
		Checksum:             asm.Master.Checksum,
		FileSize:             asm.Master.Size,
		MimeType:             asm.Master.MimeType,
		Parts:                string(parts),
		IsCompound:           desc.IsCompound || len(asm.Parts) > 1,
		IsPublished:          false,
	}
	if obj.Mods == "" {
		raw, err := json.Marshal(desc)
		if err != nil {
			return nil, services.Wrap(services.ErrDataIntegrity, "finalize", "encode descriptive record", "", err)
		}
		obj.Mods = string(raw)
	}
	if asm.Transcript != nil {
		obj.Transcript = string(asm.Transcript.Transcript)
		obj.TranscriptSearch = asm.Transcript.SearchText
	}
	return obj, nil
}

func (f *Finalizer) scheduleDerivatives(run *ingest.Run, asm *ingest.Assembly) {
	if !f.opts.Derivatives || f.deps.Converter == nil || f.deps.Scheduler == nil {
		return
	}
	mime := strings.ToLower(strings.TrimSpace(asm.Master.MimeType))
	if !lo.ContainsBy(f.opts.MimeTypes, func(candidate string) bool {
		return strings.EqualFold(strings.TrimSpace(candidate), mime)
	}) {
		return
	}
	requests := lo.Map(asm.Parts, func(part ingest.ObjectPart, _ int) storage.ConvertRequest {
		return storage.ConvertRequest{
			ObjectKey: part.Object,
			MimeType:  lo.CoalesceOrEmpty(part.MimeType, asm.Master.MimeType),
			UUID:      part.UUID,
		}
	})
	if len(requests) == 0 {
		return
	}
	logger := run.Logger()
	task := f.convertTask(logger, requests)
	if err := f.deps.Scheduler.Go("derivatives", run.ObjectUUID, task); err != nil {
		logging.WarnWithContext(logger, "derivative requests not scheduled", "derivatives_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no derived copies for this object"),
		)
		return
	}
	logger.Info("derivative requests scheduled",
		logging.Event("derivatives_scheduled"),
		logging.Int("parts", len(requests)),
	)
}

// convertTask submits one request per interval; the first goes out at once.
func (f *Finalizer) convertTask(logger *slog.Logger, requests []storage.ConvertRequest) background.Task {
	interval := f.opts.Interval
	return func(ctx context.Context) error {
		var ticker *time.Ticker
		if interval > 0 && len(requests) > 1 {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}
		var failed []string
		for i, req := range requests {
			if i > 0 && ticker != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
			if err := f.deps.Converter.Convert(ctx, req); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("derivative request failed",
					logging.String("object_key", req.ObjectKey),
					logging.Error(err),
				)
				failed = append(failed, req.ObjectKey)
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d derivative requests failed: %s", len(failed), len(requests), strings.Join(failed, ", "))
		}
		return nil
	}
}
