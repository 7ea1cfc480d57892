package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/testsupport"
)

type fakeTransfer struct {
	calls int
	err   error
	block bool
}

func (f *fakeTransfer) Run(ctx context.Context, run *ingest.Run) error {
	f.calls++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.err != nil {
		return f.err
	}
	run.SIPUUID = "sip-1"
	run.Advance(ctx, queue.StatusIngestComplete, queue.Fields{queue.ColSIPUUID: "sip-1"})
	return nil
}

type fakeAssembler struct {
	calls int
	panic bool
}

func (f *fakeAssembler) Assemble(ctx context.Context, run *ingest.Run) (*ingest.Assembly, error) {
	f.calls++
	if f.panic {
		panic("nil descriptive record")
	}
	run.Advance(ctx, queue.StatusMetadataAssembled, nil)
	return &ingest.Assembly{Master: ingest.Master{UUID: "u1", File: "a.tif"}}, nil
}

type fakeFinalizer struct {
	calls    int
	skip     bool
	assembly *ingest.Assembly
}

func (f *fakeFinalizer) Finalize(ctx context.Context, run *ingest.Run, assembly *ingest.Assembly) error {
	f.calls++
	f.assembly = assembly
	if f.skip {
		return nil
	}
	run.Complete(ctx, nil)
	return nil
}

func TestProcessCompletesPackage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]

	transfer, assembler, finalizer := &fakeTransfer{}, &fakeAssembler{}, &fakeFinalizer{}
	completed := 0
	pipeline := ingest.NewPipeline(store, transfer, assembler, finalizer, logging.NewNop(), ingest.Hooks{
		OnComplete: func(*ingest.Run) { completed++ },
	})

	got := pipeline.Process(context.Background(), rec)
	if got.Status != queue.StatusComplete || !got.Terminal || got.Outcome != queue.OutcomeSuccess {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.SIPUUID != "sip-1" {
		t.Fatalf("expected sip uuid persisted, got %+v", got)
	}
	if finalizer.assembly == nil || finalizer.assembly.Master.UUID != "u1" {
		t.Fatalf("expected assembly handed to finalizer, got %+v", finalizer.assembly)
	}
	if completed != 1 {
		t.Fatalf("expected completion hook once, got %d", completed)
	}
}

func TestProcessHaltsOnStageError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]

	transfer := &fakeTransfer{err: errors.New("approval rejected")}
	assembler, finalizer := &fakeAssembler{}, &fakeFinalizer{}
	pipeline := ingest.NewPipeline(store, transfer, assembler, finalizer, logging.NewNop(), ingest.Hooks{})

	got := pipeline.Process(context.Background(), rec)
	if got.Status != queue.StatusHalted || !got.Terminal || got.Outcome != queue.OutcomeFailed {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Error != "approval rejected" {
		t.Fatalf("unexpected error: %q", got.Error)
	}
	if assembler.calls != 0 || finalizer.calls != 0 {
		t.Fatalf("expected later stages skipped, got assemble=%d finalize=%d", assembler.calls, finalizer.calls)
	}
}

func TestProcessConvertsPanicToHalt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]

	pipeline := ingest.NewPipeline(store, &fakeTransfer{}, &fakeAssembler{panic: true}, &fakeFinalizer{}, logging.NewNop(), ingest.Hooks{})
	got := pipeline.Process(context.Background(), rec)
	if got.Status != queue.StatusHalted || !strings.Contains(got.Error, "nil descriptive record") {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestProcessHaltsWhenFinalizerDoesNotComplete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]

	pipeline := ingest.NewPipeline(store, &fakeTransfer{}, &fakeAssembler{}, &fakeFinalizer{skip: true}, logging.NewNop(), ingest.Hooks{})
	got := pipeline.Process(context.Background(), rec)
	if !got.Terminal || got.Outcome != queue.OutcomeFailed {
		t.Fatalf("expected halted record, got %+v", got)
	}
}

func TestProcessLeavesCancelledPackageResumable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pipeline := ingest.NewPipeline(store, &fakeTransfer{block: true}, &fakeAssembler{}, &fakeFinalizer{}, logging.NewNop(), ingest.Hooks{})
	got := pipeline.Process(ctx, rec)
	if got.Terminal || got.Outcome != queue.OutcomePending {
		t.Fatalf("expected resumable record, got %+v", got)
	}
}

func TestProcessResumesAfterIngest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")[0]
	ctx := context.Background()
	if _, err := store.UpdateWhere(ctx, queue.Fields{queue.ColID: rec.ID}, queue.Fields{
		queue.ColStatus:  queue.StatusIngestComplete,
		queue.ColSIPUUID: "sip-9",
	}); err != nil {
		t.Fatalf("UpdateWhere: %v", err)
	}
	rec, _ = store.GetByID(ctx, rec.ID)

	transfer := &fakeTransfer{}
	pipeline := ingest.NewPipeline(store, transfer, &fakeAssembler{}, &fakeFinalizer{}, logging.NewNop(), ingest.Hooks{})
	got := pipeline.Process(ctx, rec)
	if transfer.calls != 0 {
		t.Fatalf("expected transfer skipped on resume, got %d calls", transfer.calls)
	}
	if got.Status != queue.StatusComplete || got.SIPUUID != "sip-9" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
