package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accession/internal/api"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/services"
	"accession/internal/testsupport"
	"accession/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScheduler struct {
	started []string
	woken   int
	err     error
}

func (s *fakeScheduler) StartBatch(batch string) error {
	if s.err != nil {
		return s.err
	}
	s.started = append(s.started, batch)
	return nil
}

func (s *fakeScheduler) Wake() { s.woken++ }

func (s *fakeScheduler) Status(context.Context) workflow.StatusSummary {
	return workflow.StatusSummary{Running: true, AutoStart: true, MaxConcurrent: 2,
		QueueStats: map[queue.Status]int{queue.StatusQueued: 2}}
}

type fakeLister struct {
	packages []string
	err      error
}

func (l fakeLister) ListPackages(context.Context, string) ([]string, error) {
	return l.packages, l.err
}

type runningSet map[string]bool

func (r runningSet) IsRunning(batch string) bool { return r[batch] }

type queuedNotes struct{ batches []string }

func (n *queuedNotes) BatchQueued(_ context.Context, batch string, _ int) {
	n.batches = append(n.batches, batch)
}

type fixture struct {
	store     *queue.Store
	scheduler *fakeScheduler
	notes     *queuedNotes
	router    *gin.Engine
}

func newFixture(t *testing.T, lister api.PackageLister, running runningSet) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	f := &fixture{store: store, scheduler: &fakeScheduler{}, notes: &queuedNotes{}}
	f.router = api.NewRouter(api.Deps{
		Queue:     api.NewQueueService(store, lister, running),
		Scheduler: f.scheduler,
		Notifier:  f.notes,
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("accession_up 1\n")) }),
		Logger:    logging.NewNop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestEnqueueCreatesRecordsAndWakesScheduler(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.do(t, http.MethodPost, "/api/batches", api.EnqueueRequest{Batch: "new_2-resources_7", Packages: []string{"p1", "p2"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "p1", resp.Records[0].Package)
	assert.Equal(t, "QUEUED", resp.Records[0].Status)
	assert.Equal(t, 1, f.scheduler.woken)
	assert.Equal(t, []string{"new_2-resources_7"}, f.notes.batches)

	dup := f.do(t, http.MethodPost, "/api/batches", api.EnqueueRequest{Batch: "new_2-resources_7", Packages: []string{"p2"}})
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestEnqueueListsPackagesFromQA(t *testing.T) {
	f := newFixture(t, fakeLister{packages: []string{"a", "b", "c"}}, nil)
	rec := f.do(t, http.MethodPost, "/api/batches", api.EnqueueRequest{Batch: "new_1-resources_3"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp api.EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 3)
}

func TestEnqueueErrors(t *testing.T) {
	remote := services.Wrap(services.ErrRemoteCall, "qa", "list packages", "status 500", nil)
	tests := []struct {
		name   string
		lister api.PackageLister
		req    api.EnqueueRequest
		code   int
	}{
		{"missing batch", nil, api.EnqueueRequest{Packages: []string{"p"}}, http.StatusBadRequest},
		{"no lister", nil, api.EnqueueRequest{Batch: "b"}, http.StatusBadRequest},
		{"empty folder", fakeLister{}, api.EnqueueRequest{Batch: "b"}, http.StatusBadRequest},
		{"qa unavailable", fakeLister{err: remote}, api.EnqueueRequest{Batch: "b"}, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.lister, nil)
			rec := f.do(t, http.MethodPost, "/api/batches", tc.req)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Zero(t, f.scheduler.woken)
		})
	}
}

func TestBatchViews(t *testing.T) {
	f := newFixture(t, nil, runningSet{"b1": true})
	testsupport.MustEnqueue(t, f.store, "b1", "p1", "p2")
	testsupport.MustEnqueue(t, f.store, "b2", "p3")

	rec := f.do(t, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list api.BatchListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Batches, 2)
	assert.Equal(t, "b1", list.Batches[0].Batch)
	assert.True(t, list.Batches[0].Running)
	assert.Equal(t, 2, list.Batches[0].Pending)

	rec = f.do(t, http.MethodGet, "/api/batches/b2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail api.BatchDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "b2", detail.Batch.Batch)
	require.Len(t, detail.Records, 1)
	assert.Equal(t, "p3", detail.Records[0].Package)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/batches/missing", nil).Code)
}

func TestStartBatch(t *testing.T) {
	f := newFixture(t, nil, nil)
	testsupport.MustEnqueue(t, f.store, "b1", "p1")

	rec := f.do(t, http.MethodPost, "/api/batches/b1/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"b1"}, f.scheduler.started)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/batches/nope/start", nil).Code)

	f.scheduler.err = workflow.ErrAtCapacity
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/batches/b1/start", nil).Code)
	f.scheduler.err = workflow.ErrBatchActive
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/batches/b1/start", nil).Code)
}

func TestClearQueue(t *testing.T) {
	f := newFixture(t, nil, runningSet{"busy": true})
	testsupport.MustEnqueue(t, f.store, "idle", "p1", "p2")
	testsupport.MustEnqueue(t, f.store, "busy", "p3")

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/queue?batch=busy", nil).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/queue", nil).Code)

	rec := f.do(t, http.MethodDelete, "/api/queue?batch=idle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Removed)
}

func TestStatusAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status api.DaemonStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Workflow.Running)
	assert.Equal(t, 2, status.Workflow.QueueStats["QUEUED"])

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "accession_up"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
