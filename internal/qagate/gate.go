package qagate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"accession/internal/finalize"
	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/services"
	"accession/internal/services/metadata"
	"accession/internal/services/qa"
)

// QAService is the slice of the QA service the gate calls.
type QAService interface {
	SetFolderName(ctx context.Context, folder string) (bool, error)
	CheckFolderName(ctx context.Context, folder string) (qa.CheckResult, error)
	CheckPackageNames(ctx context.Context, folder string) (qa.CheckResult, error)
	CheckURIFiles(ctx context.Context, folder string) (qa.CheckResult, error)
	TotalBatchSize(ctx context.Context, folder string) (qa.BatchSize, error)
}

// Collections looks up and persists collection records.
type Collections interface {
	CollectionByURI(ctx context.Context, uri string) (*repository.Object, error)
	SaveObject(ctx context.Context, obj *repository.Object) error
}

// Metadata fetches descriptive records.
type Metadata interface {
	Fetch(ctx context.Context, uri string) (*metadata.Record, error)
}

// Handles mints persistent identifiers.
type Handles interface {
	CreateHandle(ctx context.Context, uuid string) (string, error)
}

// Indexer publishes documents to the search index.
type Indexer interface {
	Index(ctx context.Context, id string, document any) error
}

// Store is the slice of the queue store the gate writes.
type Store interface {
	UpdateWhere(ctx context.Context, match, patch queue.Fields) (int64, error)
}

// Result describes a batch that passed the gate.
type Result struct {
	CollectionUUID string
	CollectionURI  string
	Created        bool
	Size           Size
}

// Gate runs the QA checks for a batch.
type Gate struct {
	qa          QAService
	collections Collections
	metadata    Metadata
	handles     Handles
	index       Indexer
	store       Store
	maxBatchGB  float64
	logger      *slog.Logger
}

// Deps bundles the gate's collaborators.
type Deps struct {
	QA          QAService
	Collections Collections
	Metadata    Metadata
	Handles     Handles
	Index       Indexer
	Store       Store
}

// New constructs a gate with a batch size ceiling in gigabytes.
func New(deps Deps, maxBatchGB float64, logger *slog.Logger) *Gate {
	return &Gate{
		qa:          deps.QA,
		collections: deps.Collections,
		metadata:    deps.Metadata,
		handles:     deps.Handles,
		index:       deps.Index,
		store:       deps.Store,
		maxBatchGB:  maxBatchGB,
		logger:      logging.NewComponentLogger(logger, "qa-gate"),
	}
}

// Check runs every step for batch in order. On failure the pending records
// of the batch are halted with the reason and the error is returned; no step
// after the failing one runs.
func (g *Gate) Check(ctx context.Context, batch string) (*Result, error) {
	ctx = services.WithStage(services.WithBatch(ctx, batch), "qa")
	logger := logging.WithContext(ctx, g.logger)

	result, err := g.run(ctx, batch)
	if err != nil {
		g.halt(ctx, logger, batch, err)
		return nil, err
	}

	g.write(ctx, logger, batch, queue.Fields{
		queue.ColCollectionUUID: result.CollectionUUID,
		queue.ColCollectionURI:  result.CollectionURI,
		queue.ColBatchSize:      result.Size.String(),
	})
	logger.Info("batch passed qa",
		logging.Event("qa_passed"),
		logging.String("collection_uuid", result.CollectionUUID),
		logging.String("collection_uri", result.CollectionURI),
		logging.Bool("collection_created", result.Created),
		logging.String("batch_size", result.Size.String()),
	)
	return result, nil
}

func (g *Gate) run(ctx context.Context, batch string) (*Result, error) {
	collection, created, err := g.resolveCollection(ctx, batch)
	if err != nil {
		return nil, err
	}

	isSet, err := g.qa.SetFolderName(ctx, batch)
	if err != nil {
		return nil, ingest.Reason("Unable to set folder name", err)
	}
	if !isSet {
		return nil, ingest.Reason("Unable to set folder name",
			services.Wrap(services.ErrValidation, "qa", "set folder name", batch, nil))
	}
	if err := checkStep("Folder name", func() (qa.CheckResult, error) { return g.qa.CheckFolderName(ctx, batch) }); err != nil {
		return nil, err
	}
	if err := checkStep("Package names", func() (qa.CheckResult, error) { return g.qa.CheckPackageNames(ctx, batch) }); err != nil {
		return nil, err
	}
	if err := checkStep("URI files", func() (qa.CheckResult, error) { return g.qa.CheckURIFiles(ctx, batch) }); err != nil {
		return nil, err
	}

	reported, err := g.qa.TotalBatchSize(ctx, batch)
	if err != nil {
		return nil, ingest.Reason("Unable to determine batch size", err)
	}
	if problems := nonEmpty(reported.Errors); len(problems) > 0 {
		return nil, ingest.Reason("Batch size errors: "+strings.Join(problems, "; "),
			services.Wrap(services.ErrValidation, "qa", "batch size", "", nil))
	}
	size := FormatBytes(reported.Bytes)
	if ExceedsCeiling(size, g.maxBatchGB) {
		reason := fmt.Sprintf("Batch size %s exceeds the %s GB limit", size, formatLimit(g.maxBatchGB))
		return nil, ingest.Reason(reason, services.Wrap(services.ErrValidation, "qa", "batch size", reason, nil))
	}

	return &Result{
		CollectionUUID: collection.UUID,
		CollectionURI:  collection.URI,
		Created:        created,
		Size:           size,
	}, nil
}

func checkStep(label string, call func() (qa.CheckResult, error)) error {
	result, err := call()
	if err != nil {
		return ingest.Reason(label+" check failed", err)
	}
	if problems := nonEmpty(result.Errors); len(problems) > 0 {
		return ingest.Reason(label+" errors: "+strings.Join(problems, "; "),
			services.Wrap(services.ErrValidation, "qa", strings.ToLower(label), "", nil))
	}
	return nil
}

// resolveCollection returns the collection named by the batch, creating it
// when absent. Two batches for the same new collection can both miss the
// lookup and create duplicates.
func (g *Gate) resolveCollection(ctx context.Context, batch string) (*repository.Object, bool, error) {
	uri, err := CollectionURI(batch)
	if err != nil {
		return nil, false, ingest.Reason("Unable to derive collection from batch name", err)
	}
	existing, err := g.collections.CollectionByURI(ctx, uri)
	if err != nil {
		return nil, false, ingest.Reason("Unable to look up collection", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	desc, err := g.metadata.Fetch(ctx, uri)
	if err != nil {
		return nil, false, ingest.Reason("Unable to fetch collection record", err)
	}
	if strings.TrimSpace(desc.Title) == "" {
		return nil, false, ingest.Reason("Unable to create collection",
			services.Wrap(services.ErrDataIntegrity, "qa", "collection record", "missing title for "+uri, nil))
	}
	id := uuid.NewString()
	handleURL, err := g.handles.CreateHandle(ctx, id)
	if err != nil {
		return nil, false, ingest.Reason("Unable to create collection handle", err)
	}

	collection := &repository.Object{
		UUID:        id,
		ObjectType:  repository.TypeCollection,
		Handle:      handleURL,
		URI:         uri,
		Mods:        string(desc.Raw),
		IsPublished: false,
	}
	projection := finalize.BuildIndexRecord(collection, desc)
	display, err := json.Marshal(projection)
	if err != nil {
		return nil, false, ingest.Reason("Unable to create collection", err)
	}
	collection.DisplayRecord = string(display)

	if err := g.collections.SaveObject(ctx, collection); err != nil {
		return nil, false, ingest.Reason("Unable to create collection", err)
	}
	if err := g.index.Index(ctx, collection.UUID, projection); err != nil {
		return nil, false, ingest.Reason("Unable to create collection", err)
	}
	return collection, true, nil
}

func (g *Gate) halt(ctx context.Context, logger *slog.Logger, batch string, err error) {
	n := g.write(ctx, logger, batch, ingest.HaltFields(err))
	attrs := []logging.Attr{
		logging.ErrorKind(err),
		logging.String(logging.FieldErrorHint, "fix the batch folder, clear the batch and re-enqueue"),
		logging.Int64("records_halted", n),
		logging.Error(err),
	}
	var reason *ingest.ReasonError
	if errors.As(err, &reason) && reason.Err != nil {
		attrs = append(attrs, logging.String("cause", reason.Err.Error()))
	}
	logging.ErrorWithContext(logger, "batch halted by qa", "qa_halted", attrs...)
}

func (g *Gate) write(ctx context.Context, logger *slog.Logger, batch string, patch queue.Fields) int64 {
	n, err := g.store.UpdateWhere(ctx, queue.Fields{queue.ColBatch: batch, queue.ColTerminal: false}, patch)
	if err != nil {
		logging.WarnWithContext(logger, "queue update failed", "queue_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch state not persisted"),
		)
	}
	return n
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formatLimit(limit float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", limit), "0"), ".")
}
