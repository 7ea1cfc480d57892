package queue_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"accession/internal/queue"
	"accession/internal/testsupport"
)

func TestEnqueueCreatesPendingRecordsInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	records := testsupport.MustEnqueue(t, store, "new_2-resources_7", "pkg-a", "pkg-b", " pkg-a ", "")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != queue.StatusQueued || rec.Terminal || rec.Outcome != queue.OutcomePending {
			t.Fatalf("unexpected initial state: %+v", rec)
		}
	}

	next, err := store.NextPending(ctx, "new_2-resources_7")
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.Package != "pkg-a" {
		t.Fatalf("expected FIFO draining to return pkg-a first, got %+v", next)
	}
}

func TestEnqueueRejectsDuplicatePendingPackage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")
	_, err := store.Enqueue(ctx, "batch-1", []string{"pkg-b", "pkg-a"})
	if !errors.Is(err, queue.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	all, err := store.GetAll(ctx, queue.Fields{queue.ColBatch: "batch-1"}, queue.Order{})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected rejected enqueue to insert nothing, got %d records", len(all))
	}

	// A terminal record no longer blocks re-queueing the package.
	if _, err := store.UpdateWhere(ctx, queue.Fields{queue.ColBatch: "batch-1"}, queue.Fields{
		queue.ColTerminal: true,
		queue.ColOutcome:  queue.OutcomeSuccess,
		queue.ColStatus:   queue.StatusComplete,
	}); err != nil {
		t.Fatalf("UpdateWhere: %v", err)
	}
	if _, err := store.Enqueue(ctx, "batch-1", []string{"pkg-a"}); err != nil {
		t.Fatalf("expected re-enqueue after completion to succeed: %v", err)
	}
}

func TestUpdateWherePatchesMatchingRecordsOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recs := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a", "pkg-b")
	testsupport.MustEnqueue(t, store, "batch-2", "pkg-c")

	n, err := store.UpdateWhere(ctx,
		queue.Fields{queue.ColBatch: "batch-1", queue.ColTerminal: false},
		queue.Fields{queue.ColCollectionUUID: "col-1", queue.ColBatchSize: "12.5 GB"},
	)
	if err != nil {
		t.Fatalf("UpdateWhere: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows updated, got %d", n)
	}

	parts := []map[string]string{{"title": "a.tif", "object": "objects/u1-a.tif"}}
	if _, err := store.UpdateWhere(ctx, queue.Fields{queue.ColID: recs[0].ID}, queue.Fields{
		queue.ColStatus:      queue.StatusMetadataAssembled,
		queue.ColObjectParts: parts,
		queue.ColMasterData:  json.RawMessage(`{"checksum":"abc"}`),
		queue.ColFileCount:   3,
	}); err != nil {
		t.Fatalf("UpdateWhere by id: %v", err)
	}

	got, err := store.GetByID(ctx, recs[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CollectionUUID != "col-1" || got.BatchSize != "12.5 GB" || got.FileCount != 3 {
		t.Fatalf("unexpected patched record: %+v", got)
	}
	if string(got.MasterData) != `{"checksum":"abc"}` {
		t.Fatalf("unexpected master data: %s", got.MasterData)
	}
	var decoded []map[string]string
	if err := json.Unmarshal(got.ObjectParts, &decoded); err != nil || decoded[0]["object"] != "objects/u1-a.tif" {
		t.Fatalf("unexpected object parts %s: %v", got.ObjectParts, err)
	}

	other, err := store.GetOne(ctx, queue.Fields{queue.ColBatch: "batch-2"})
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if other.CollectionUUID != "" {
		t.Fatalf("expected other batch untouched, got %+v", other)
	}
}

func TestUpdateWhereRejectsUnknownAndReadOnlyColumns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")

	if _, err := store.UpdateWhere(ctx, queue.Fields{"is_complete": 0}, queue.Fields{queue.ColStatus: queue.StatusProcessing}); !errors.Is(err, queue.ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn for match, got %v", err)
	}
	if _, err := store.UpdateWhere(ctx, queue.Fields{queue.ColBatch: "batch-1"}, queue.Fields{queue.ColID: 7}); !errors.Is(err, queue.ErrUnknownColumn) {
		t.Fatalf("expected read-only rejection, got %v", err)
	}
	if _, err := store.UpdateWhere(ctx, nil, queue.Fields{queue.ColStatus: queue.StatusProcessing}); !errors.Is(err, queue.ErrEmptyMatch) {
		t.Fatalf("expected ErrEmptyMatch, got %v", err)
	}
}

func TestNextPendingSkipsTerminalRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recs := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a", "pkg-b")
	testsupport.MustFinish(t, store, recs[0].ID, queue.StatusComplete, queue.OutcomeSuccess)

	next, err := store.NextPending(ctx, "batch-1")
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != recs[1].ID {
		t.Fatalf("expected pkg-b next, got %+v", next)
	}

	testsupport.MustFinish(t, store, recs[1].ID, queue.StatusComplete, queue.OutcomeSuccess)
	next, err = store.NextPending(ctx, "batch-1")
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next != nil {
		t.Fatalf("expected drained batch, got %+v", next)
	}
}

func TestGetAllOrdersDescending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "batch-1", "pkg-a", "pkg-b", "pkg-c")

	all, err := store.GetAll(ctx, queue.Fields{queue.ColBatch: "batch-1"}, queue.Order{Desc: true})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 3 || all[0].Package != "pkg-c" || all[2].Package != "pkg-a" {
		t.Fatalf("unexpected order: %v", packages(all))
	}

	byPackage, err := store.GetAll(ctx, nil, queue.Order{Column: queue.ColPackage})
	if err != nil {
		t.Fatalf("GetAll by package: %v", err)
	}
	if byPackage[0].Package != "pkg-a" {
		t.Fatalf("unexpected order: %v", packages(byPackage))
	}
}

func TestBatchSummariesAndPendingBatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ok := testsupport.MustEnqueue(t, store, "batch-ok", "pkg-a", "pkg-b")
	testsupport.MustEnqueue(t, store, "batch-halted", "pkg-c", "pkg-d")
	testsupport.MustEnqueue(t, store, "batch-new", "pkg-e")

	testsupport.MustPatch(t, store, ok[0].ID, queue.Fields{queue.ColStatus: queue.StatusTransferInProgress})
	if _, err := store.UpdateWhere(ctx, queue.Fields{queue.ColBatch: "batch-halted", queue.ColPackage: "pkg-c"}, queue.Fields{
		queue.ColStatus:   queue.StatusHalted,
		queue.ColTerminal: true,
		queue.ColOutcome:  queue.OutcomeFailed,
		queue.ColError:    "Unable to create collection",
	}); err != nil {
		t.Fatalf("UpdateWhere: %v", err)
	}

	summary, err := store.Batch(ctx, "batch-ok")
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if summary.Total != 2 || summary.InFlight != 1 || summary.Pending != 1 || summary.Done() {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	halted, err := store.Batch(ctx, "batch-halted")
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if !halted.Halted() || halted.Error != "Unable to create collection" {
		t.Fatalf("unexpected halted summary: %+v", halted)
	}

	pending, err := store.PendingBatches(ctx)
	if err != nil {
		t.Fatalf("PendingBatches: %v", err)
	}
	if len(pending) != 2 || pending[0] != "batch-ok" || pending[1] != "batch-new" {
		t.Fatalf("unexpected pending batches: %v", pending)
	}

	missing, err := store.Batch(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil summary for unknown batch, got %+v %v", missing, err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 5 || health.Failed != 1 || health.InFlight != 1 || health.Pending != 3 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestStaleReportsOnlyInFlightRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recs := testsupport.MustEnqueue(t, store, "batch-1", "pkg-a", "pkg-b")
	testsupport.MustPatch(t, store, recs[0].ID, queue.Fields{queue.ColStatus: queue.StatusUploading})

	fresh, err := store.Stale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no stale records, got %d", len(fresh))
	}

	time.Sleep(5 * time.Millisecond)
	stale, err := store.Stale(ctx, time.Millisecond)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != recs[0].ID {
		t.Fatalf("expected only the uploading record, got %v", packages(stale))
	}
}

func TestDeleteAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "batch-1", "pkg-a", "pkg-b")
	testsupport.MustEnqueue(t, store, "batch-2", "pkg-c")

	removed, err := store.Delete(ctx, queue.Fields{queue.ColBatch: "batch-1", queue.ColPackage: "pkg-a"})
	if err != nil || removed != 1 {
		t.Fatalf("Delete removed %d: %v", removed, err)
	}
	if _, err := store.Delete(ctx, queue.Fields{}); !errors.Is(err, queue.ErrEmptyMatch) {
		t.Fatalf("expected ErrEmptyMatch, got %v", err)
	}
	cleared, err := store.Clear(ctx)
	if err != nil || cleared != 2 {
		t.Fatalf("Clear removed %d: %v", cleared, err)
	}
}

func TestCheckHealthReportsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns: %v", health.MissingColumns)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("unexpected schema version: %d", health.SchemaVersion)
	}
}

func TestReopenPreservesRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustEnqueue(t, store, "batch-1", "pkg-a")
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	rec, err := reopened.NextPending(context.Background(), "batch-1")
	if err != nil || rec == nil {
		t.Fatalf("expected record after reopen, got %+v %v", rec, err)
	}
}

func packages(records []*queue.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Package)
	}
	return out
}

func TestOpenRefusesForeignSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	path := store.Path()
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
