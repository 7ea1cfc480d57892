package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/services"
)

// Transferer moves a package through the archival transfer processor until
// its ingest completes.
type Transferer interface {
	Run(ctx context.Context, run *Run) error
}

// Assembler gathers descriptive and technical metadata for an ingested package.
type Assembler interface {
	Assemble(ctx context.Context, run *Run) (*Assembly, error)
}

// Finalizer persists and publishes the repository record and completes the run.
type Finalizer interface {
	Finalize(ctx context.Context, run *Run, assembly *Assembly) error
}

// Pipeline runs one package through transfer, assembly and finalize.
type Pipeline struct {
	store     Store
	transfer  Transferer
	assembler Assembler
	finalizer Finalizer
	logger    *slog.Logger
	hooks     Hooks
}

// NewPipeline wires the per-package stages.
func NewPipeline(store Store, transfer Transferer, assembler Assembler, finalizer Finalizer, logger *slog.Logger, hooks Hooks) *Pipeline {
	return &Pipeline{
		store:     store,
		transfer:  transfer,
		assembler: assembler,
		finalizer: finalizer,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		hooks:     hooks,
	}
}

// Process runs rec to a terminal state and returns the record as written.
// Stage failures halt the record; they are never returned. A record left
// non-terminal means ctx was cancelled and the package will resume from its
// last persisted status.
func (p *Pipeline) Process(ctx context.Context, rec *queue.Record) *queue.Record {
	if rec == nil || rec.Terminal {
		return rec
	}
	run := NewRun(rec, p.store, p.logger, p.hooks)
	ctx = run.Context(ctx)

	// Cancelling pkgCtx on any return stops pollers still running for the package.
	pkgCtx, cancel := context.WithCancel(ctx)
	err := p.execute(pkgCtx, run)
	cancel()

	switch {
	case err != nil && ctx.Err() != nil:
		run.Logger().Info("package interrupted",
			logging.Event("package_interrupted"),
			logging.Status(string(run.Status)),
		)
	case err != nil:
		run.Halt(ctx, err)
	case !run.Terminal():
		run.Halt(ctx, services.Wrap(services.ErrDataIntegrity, "pipeline", "finalize", "finalizer returned without completing the package", nil))
	}

	stored, readErr := p.store.GetByID(context.WithoutCancel(ctx), run.RecordID)
	if readErr != nil || stored == nil {
		return run.Snapshot()
	}
	return stored
}

func (p *Pipeline) execute(ctx context.Context, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			run.Logger().Error("pipeline panic", logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	if !run.Reached(queue.StatusIngestComplete) {
		if err := p.transfer.Run(ctx, run); err != nil {
			return err
		}
		if run.Terminal() {
			return nil
		}
	}
	assembly, err := p.assembler.Assemble(ctx, run)
	if err != nil {
		return err
	}
	return p.finalizer.Finalize(ctx, run, assembly)
}
