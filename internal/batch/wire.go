package batch

import (
	"log/slog"

	"accession/internal/assembly"
	"accession/internal/background"
	"accession/internal/config"
	"accession/internal/finalize"
	"accession/internal/ingest"
	"accession/internal/qagate"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/services/handle"
	"accession/internal/services/metadata"
	"accession/internal/services/qa"
	"accession/internal/services/search"
	"accession/internal/services/storage"
	processor "accession/internal/services/transfer"
	"accession/internal/transfer"
)

// Clients are the collaborator clients a driver is built on.
type Clients struct {
	QA        *qa.Client
	Metadata  *metadata.Client
	Processor *processor.Client
	Storage   *storage.Client
	Handles   *handle.Client
	Search    *search.Client
}

// NewClients builds every collaborator client from configuration.
func NewClients(cfg *config.Config) Clients {
	return Clients{
		QA:        qa.New(cfg.QA),
		Metadata:  metadata.New(cfg.Metadata),
		Processor: processor.New(cfg.Transfer),
		Storage:   storage.New(cfg.Storage),
		Handles:   handle.New(cfg.Handle),
		Search:    search.New(cfg.Search),
	}
}

// Options carries the optional parts of a driver build.
type Options struct {
	Tracker   *background.Tracker
	Hooks     ingest.Hooks
	Observers []Observer
}

// Build wires the QA gate, transfer orchestrator, assembler and finalizer
// into a driver backed by store and repo.
func Build(cfg *config.Config, store *queue.Store, repo *repository.Store, clients Clients, logger *slog.Logger, opts Options) *Driver {
	gate := qagate.New(qagate.Deps{
		QA:          clients.QA,
		Collections: repo,
		Metadata:    clients.Metadata,
		Handles:     clients.Handles,
		Index:       clients.Search,
		Store:       store,
	}, cfg.QA.MaxBatchGB, logger)

	orchestrator := transfer.New(clients.QA, clients.Processor, cfg.Poll(), logger)
	assembler := assembly.New(clients.Processor, clients.Storage, clients.Metadata, repo, logger)

	finalizeDeps := finalize.Deps{
		Repository: repo,
		Index:      clients.Search,
		Handles:    clients.Handles,
		Converter:  clients.Storage,
	}
	if opts.Tracker != nil {
		finalizeDeps.Scheduler = opts.Tracker
	}
	finalizer := finalize.New(finalizeDeps, finalize.Options{
		Derivatives: cfg.Derivatives.Enabled,
		MimeTypes:   cfg.Derivatives.MimeTypes,
		Interval:    cfg.DerivativeInterval(),
	}, logger)

	pipeline := ingest.NewPipeline(store, orchestrator, assembler, finalizer, logger, opts.Hooks)
	return NewDriver(store, gate, pipeline, clients.Metadata, logger, opts.Observers...)
}
