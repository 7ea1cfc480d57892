package qa_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accession/internal/config"
	"accession/internal/services"
	"accession/internal/services/qa"
)

func newClient(t *testing.T, handler http.HandlerFunc) *qa.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return qa.New(config.QA{BaseURL: server.URL, APIKey: "qa-key", TimeoutSeconds: 5})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestChecksDecodeResults(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "qa-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "new_2-resources_7", r.URL.Query().Get("folder"))
		switch r.URL.Path {
		case "/folders/set":
			writeJSON(t, w, map[string]any{"is_set": true})
		case "/folders/check-name":
			writeJSON(t, w, map[string]any{"folder_name_results": map[string]any{"errors": []string{}, "result": "ok"}})
		case "/packages/check-names":
			writeJSON(t, w, map[string]any{"package_name_results": map[string]any{"errors": []string{"pkg 1 has spaces"}}})
		case "/packages/check-uri-txt":
			writeJSON(t, w, map[string]any{"uri_results": map[string]any{"errors": []string{}, "result": []string{"pkg-a"}}})
		case "/folders/size":
			writeJSON(t, w, map[string]any{"total_batch_size": map[string]any{"errors": []string{}, "result": 1099511627776}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	set, err := client.SetFolderName(ctx, "new_2-resources_7")
	require.NoError(t, err)
	assert.True(t, set)

	folder, err := client.CheckFolderName(ctx, "new_2-resources_7")
	require.NoError(t, err)
	assert.False(t, folder.Failed())
	assert.JSONEq(t, `"ok"`, string(folder.Result))

	packages, err := client.CheckPackageNames(ctx, "new_2-resources_7")
	require.NoError(t, err)
	assert.True(t, packages.Failed())
	assert.Equal(t, "pkg 1 has spaces", packages.Message())

	uris, err := client.CheckURIFiles(ctx, "new_2-resources_7")
	require.NoError(t, err)
	assert.False(t, uris.Failed())

	size, err := client.TotalBatchSize(ctx, "new_2-resources_7")
	require.NoError(t, err)
	assert.Equal(t, int64(1099511627776), size.Bytes)
}

func TestPackageOperations(t *testing.T) {
	var moved map[string]string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/packages":
			writeJSON(t, w, map[string]any{"packages": []string{"pkg-a", "pkg-b"}})
		case "/packages/file-count":
			assert.Equal(t, "pkg-a", r.URL.Query().Get("package"))
			writeJSON(t, w, map[string]any{"file_count": 4})
		case "/packages/uri":
			writeJSON(t, w, map[string]any{"uri": " /repositories/2/archival_objects/9 \n"})
		case "/packages/move-to-ingest":
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&moved))
			writeJSON(t, w, map[string]any{"message": "moved"})
		case "/packages/upload-status":
			assert.Equal(t, "4", r.URL.Query().Get("expected_file_count"))
			writeJSON(t, w, map[string]any{"data": map[string]any{"message": qa.UploadComplete}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	pkgs, err := client.ListPackages(ctx, "batch")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg-a", "pkg-b"}, pkgs)

	count, err := client.PackageFileCount(ctx, "batch", "pkg-a")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	uri, err := client.PackageURI(ctx, "batch", "pkg-a")
	require.NoError(t, err)
	assert.Equal(t, "/repositories/2/archival_objects/9", uri)

	require.NoError(t, client.MoveToIngest(ctx, "u-1", "batch", "pkg-a"))
	assert.Equal(t, map[string]string{"uuid": "u-1", "folder": "batch", "package": "pkg-a"}, moved)

	msg, err := client.UploadStatus(ctx, "u-1", 4)
	require.NoError(t, err)
	assert.Equal(t, qa.UploadComplete, msg)
}

func TestErrorResponsesAreRemoteCallFailures(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/packages/move-to-sftp":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unknown uuid"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`not json`))
		}
	})
	ctx := context.Background()

	err := client.MoveToSFTP(ctx, "u-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrRemoteCall))
	assert.Contains(t, err.Error(), "unknown uuid")

	_, err = client.SetFolderName(ctx, "batch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrDataIntegrity))
}
