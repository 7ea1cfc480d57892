package testsupport

import (
	"context"
	"testing"

	"accession/internal/config"
	"accession/internal/queue"
)

// MustOpenStore opens the queue database under cfg's data directory and
// closes it when the test ends.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue %s: %v", cfg.QueueDBPath(), err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// MustEnqueue queues packages under batch and returns the created records.
func MustEnqueue(t testing.TB, store *queue.Store, batch string, packages ...string) []*queue.Record {
	t.Helper()
	records, err := store.Enqueue(context.Background(), batch, packages)
	if err != nil {
		t.Fatalf("enqueue %s: %v", batch, err)
	}
	return records
}

// MustPatch applies fields to the record with the given id.
func MustPatch(t testing.TB, store *queue.Store, id int64, fields queue.Fields) {
	t.Helper()
	n, err := store.UpdateWhere(context.Background(), queue.Fields{queue.ColID: id}, fields)
	if err != nil {
		t.Fatalf("patch record %d: %v", id, err)
	}
	if n != 1 {
		t.Fatalf("patch record %d: matched %d rows", id, n)
	}
}

// MustFinish marks a record terminal with outcome and status.
func MustFinish(t testing.TB, store *queue.Store, id int64, status queue.Status, outcome queue.Outcome) {
	t.Helper()
	MustPatch(t, store, id, queue.Fields{
		queue.ColStatus:   status,
		queue.ColTerminal: true,
		queue.ColOutcome:  outcome,
	})
}

// MustRecord reloads a record by id and fails the test when it is gone.
func MustRecord(t testing.TB, store *queue.Store, id int64) *queue.Record {
	t.Helper()
	rec, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load record %d: %v", id, err)
	}
	if rec == nil {
		t.Fatalf("record %d not found", id)
	}
	return rec
}
