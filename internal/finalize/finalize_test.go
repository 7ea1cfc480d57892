package finalize_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"accession/internal/background"
	"accession/internal/finalize"
	"accession/internal/ingest"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/services"
	"accession/internal/services/storage"
	"accession/internal/testsupport"
)

type fakeRepository struct {
	saved []*repository.Object
	err   error
}

func (f *fakeRepository) ObjectByUUID(_ context.Context, id string) (*repository.Object, error) {
	for _, obj := range f.saved {
		if obj.UUID == id {
			return obj, nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) SaveObject(_ context.Context, obj *repository.Object) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, obj)
	return nil
}

type fakeIndex struct {
	ids []string
	err error
}

func (f *fakeIndex) Index(_ context.Context, id string, _ any) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeHandles struct{}

func (fakeHandles) CreateHandle(_ context.Context, id string) (string, error) {
	return "https://hdl.example.org/10176/" + id, nil
}

type countingHandles struct{ calls int }

func (h *countingHandles) CreateHandle(_ context.Context, id string) (string, error) {
	h.calls++
	return "https://hdl.example.org/10176/" + id, nil
}

type fakeConverter struct {
	mu       sync.Mutex
	requests []storage.ConvertRequest
}

func (f *fakeConverter) Convert(_ context.Context, req storage.ConvertRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeConverter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type finalizeFixture struct {
	store *queue.Store
	run   *ingest.Run
	repo  *fakeRepository
	index *fakeIndex
}

func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.MustEnqueue(t, store, "new_2-resources_7", "pkg-a")[0]
	run := ingest.NewRun(rec, store, logging.NewNop(), ingest.Hooks{})
	run.ObjectUUID = "obj-1"
	run.CollectionUUID = "col-1"
	run.MetadataURI = "/repositories/2/archival_objects/88"
	run.Status = queue.StatusMetadataAssembled
	return &finalizeFixture{store: store, run: run, repo: &fakeRepository{}, index: &fakeIndex{}}
}

func sampleAssembly() *ingest.Assembly {
	desc := sampleDescriptive()
	desc.Raw = json.RawMessage(`{"title":"Letter to the Board"}`)
	return &ingest.Assembly{
		Descriptive: desc,
		Parts: []ingest.ObjectPart{
			{Title: "a.tif", Order: "1", UUID: "u1", MimeType: "image/tiff", Object: "dip/objects/u1-a.tif", Thumbnail: "dip/thumbnails/u1.jpg"},
			{Title: "b.tif", Order: "2", UUID: "u2", MimeType: "image/tiff", Object: "dip/objects/u2-b.tif", Thumbnail: "dip/thumbnails/u2.jpg"},
		},
		Master: ingest.Master{
			UUID: "u1", File: "a.tif", Object: "dip/objects/u1-a.tif", Thumbnail: "dip/thumbnails/u1.jpg",
			MimeType: "image/tiff", Checksum: "abc123", Size: 2048,
		},
		Transcript: &ingest.Transcript{CallNumber: "MS-0042-001", Transcript: json.RawMessage(`{"pages":[]}`), SearchText: "board"},
	}
}

func (f *finalizeFixture) stored(t *testing.T) *queue.Record {
	t.Helper()
	rec, err := f.store.GetByID(context.Background(), f.run.RecordID)
	if err != nil || rec == nil {
		t.Fatalf("GetByID: %v", err)
	}
	return rec
}

func TestFinalizeCompletesRun(t *testing.T) {
	f := newFinalizeFixture(t)
	fin := finalize.New(finalize.Deps{Repository: f.repo, Index: f.index, Handles: fakeHandles{}}, finalize.Options{}, logging.NewNop())

	if err := fin.Finalize(context.Background(), f.run, sampleAssembly()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(f.repo.saved) != 1 {
		t.Fatalf("saved %d objects", len(f.repo.saved))
	}
	obj := f.repo.saved[0]
	if obj.UUID != "obj-1" || obj.IsMemberOfCollection != "col-1" || obj.ObjectType != repository.TypeObject {
		t.Fatalf("unexpected object %+v", obj)
	}
	if obj.IsPublished || !obj.IsCompound {
		t.Fatalf("flags published=%v compound=%v", obj.IsPublished, obj.IsCompound)
	}
	if obj.Master != "dip/objects/u1-a.tif" || obj.Checksum != "abc123" || obj.FileSize != 2048 {
		t.Fatalf("master fields %+v", obj)
	}
	if obj.TranscriptSearch != "board" || obj.Mods != `{"title":"Letter to the Board"}` {
		t.Fatalf("transcript/mods %+v", obj)
	}
	if len(f.index.ids) != 1 || f.index.ids[0] != "obj-1" {
		t.Fatalf("indexed %v", f.index.ids)
	}

	rec := f.stored(t)
	if rec.Status != queue.StatusComplete || !rec.Terminal || rec.Outcome != queue.OutcomeSuccess {
		t.Fatalf("record %+v", rec)
	}
	projection, err := finalize.ParseIndexRecord(rec.IndexRecord)
	if err != nil {
		t.Fatalf("ParseIndexRecord: %v", err)
	}
	if projection.UUID != "obj-1" || projection.CallNumber != "MS-0042-001" {
		t.Fatalf("projection %+v", projection)
	}
}

func TestFinalizeReturnsPersistFailure(t *testing.T) {
	f := newFinalizeFixture(t)
	f.repo.err = services.Wrap(services.ErrPersistence, "repository", "save object", "", errors.New("connection refused"))
	fin := finalize.New(finalize.Deps{Repository: f.repo, Index: f.index, Handles: fakeHandles{}}, finalize.Options{}, logging.NewNop())

	err := fin.Finalize(context.Background(), f.run, sampleAssembly())
	if err == nil || !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("Finalize error = %v, want persistence failure", err)
	}
	if len(f.index.ids) != 0 {
		t.Fatal("indexed an object that was not saved")
	}
	if f.run.Terminal() {
		t.Fatal("finalizer must leave halting to the pipeline")
	}
}

func TestFinalizeCompletesWhenIndexFails(t *testing.T) {
	f := newFinalizeFixture(t)
	f.index.err = services.Wrap(services.ErrRemoteCall, "search", "index", "", errors.New("503"))
	fin := finalize.New(finalize.Deps{Repository: f.repo, Index: f.index, Handles: fakeHandles{}}, finalize.Options{}, logging.NewNop())

	if err := fin.Finalize(context.Background(), f.run, sampleAssembly()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	rec := f.stored(t)
	if rec.Status != queue.StatusComplete || len(rec.IndexRecord) == 0 {
		t.Fatalf("record %+v", rec)
	}
}

func TestFinalizeReusesRecordSavedBeforeRestart(t *testing.T) {
	f := newFinalizeFixture(t)
	f.repo.saved = []*repository.Object{{
		UUID:                 "obj-1",
		ObjectType:           repository.TypeObject,
		IsMemberOfCollection: "col-1",
		Handle:               "https://hdl.example.org/10176/obj-1",
	}}
	handles := &countingHandles{}
	fin := finalize.New(finalize.Deps{Repository: f.repo, Index: f.index, Handles: handles}, finalize.Options{}, logging.NewNop())

	if err := fin.Finalize(context.Background(), f.run, sampleAssembly()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if handles.calls != 0 {
		t.Fatalf("minted %d handles for a saved record", handles.calls)
	}
	if len(f.repo.saved) != 1 {
		t.Fatalf("saved %d objects, want the existing one only", len(f.repo.saved))
	}
	if len(f.index.ids) != 1 || f.index.ids[0] != "obj-1" {
		t.Fatalf("indexed %v", f.index.ids)
	}
	rec := f.stored(t)
	if rec.Status != queue.StatusComplete || rec.Outcome != queue.OutcomeSuccess {
		t.Fatalf("record %+v", rec)
	}
}

func TestFinalizeSchedulesDerivativesForMatchingMime(t *testing.T) {
	f := newFinalizeFixture(t)
	converter := &fakeConverter{}
	tracker := background.New(context.Background(), 1, logging.NewNop())
	fin := finalize.New(finalize.Deps{
		Repository: f.repo,
		Index:      f.index,
		Handles:    fakeHandles{},
		Converter:  converter,
		Scheduler:  tracker,
	}, finalize.Options{Derivatives: true, MimeTypes: []string{"image/tiff"}, Interval: time.Millisecond}, logging.NewNop())

	if err := fin.Finalize(context.Background(), f.run, sampleAssembly()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if converter.count() != 2 {
		t.Fatalf("convert requests = %d, want 2", converter.count())
	}
	if converter.requests[1].ObjectKey != "dip/objects/u2-b.tif" || converter.requests[1].UUID != "u2" {
		t.Fatalf("second request %+v", converter.requests[1])
	}
}

func TestFinalizeSkipsDerivativesForOtherMime(t *testing.T) {
	f := newFinalizeFixture(t)
	converter := &fakeConverter{}
	tracker := background.New(context.Background(), 1, logging.NewNop())
	fin := finalize.New(finalize.Deps{
		Repository: f.repo,
		Index:      f.index,
		Handles:    fakeHandles{},
		Converter:  converter,
		Scheduler:  tracker,
	}, finalize.Options{Derivatives: true, MimeTypes: []string{"video/mp4"}}, logging.NewNop())

	if err := fin.Finalize(context.Background(), f.run, sampleAssembly()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := tracker.Summary(); len(got.Active) != 0 || got.Completed != 0 {
		t.Fatalf("unexpected background work %+v", got)
	}
}
