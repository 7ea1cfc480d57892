package storage_test

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
	"accession/internal/services/storage"
)

const manifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<dur:chunksManifest xmlns:dur="duracloud.org">
  <header schemaVersion="0.2">
    <sourceContent contentId="dips/d1/objects/u1-a.tif">
      <mimetype>image/tiff</mimetype>
      <byteSize>2147483648</byteSize>
      <md5>0cc175b9c0f1b6a831c399e269772661</md5>
    </sourceContent>
  </header>
  <chunks>
    <chunk chunkId="dips/d1/objects/u1-a.tif.dura-chunk-0000" index="0"><byteSize>1073741824</byteSize></chunk>
  </chunks>
</dur:chunksManifest>`

func newServer(t *testing.T, handler http.HandlerFunc) (*storage.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := storage.New(config.Storage{
		BaseURL:    server.URL + "/store",
		Space:      "preservation",
		Username:   "ingest",
		Token:      "tok",
		ConvertURL: server.URL + "/convert",
	})
	return client, server
}

func TestMETSAndManifest(t *testing.T) {
	client, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.URL.Path != "/convert" {
			assert.True(t, ok)
			assert.Equal(t, "ingest", user)
			assert.Equal(t, "tok", pass)
		}
		switch r.URL.Path {
		case "/store/preservation/dips/d1/METS.sip-1.xml":
			_, _ = w.Write([]byte("<mets/>"))
		case "/store/preservation/dips/d1/objects/u1-a.tif.dura-manifest":
			_, _ = w.Write([]byte(manifestXML))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	mets, err := client.METS(ctx, "sip-1", "/dips/d1/")
	require.NoError(t, err)
	assert.Equal(t, "<mets/>", string(mets))

	manifest, found, err := client.ObjectManifest(ctx, "u1", "dips/d1", "a.tif")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0cc175b9c0f1b6a831c399e269772661", manifest.MD5)
	assert.Equal(t, int64(2147483648), manifest.Size)
	assert.Equal(t, "image/tiff", manifest.MimeType)

	_, found, err = client.ObjectManifest(ctx, "u2", "dips/d1", "b.tif")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestObjectInfoReadsHeaders(t *testing.T) {
	client, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/store/preservation/dips/d1/objects/u2-b.tif":
			w.Header().Set("Content-MD5", "92eb5ffee6ae2fec3ad71c777531578f")
			w.Header().Set("Content-Length", "2048")
			w.WriteHeader(http.StatusOK)
		case "/store/preservation/dips/d1/objects/u3-c.tif":
			w.Header().Set("Content-Length", "10")
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	info, err := client.ObjectInfo(ctx, "u2", "dips/d1", "b.tif")
	require.NoError(t, err)
	assert.Equal(t, "92eb5ffee6ae2fec3ad71c777531578f", info.MD5)
	assert.Equal(t, int64(2048), info.Length)

	_, err = client.ObjectInfo(ctx, "u3", "dips/d1", "c.tif")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrDataIntegrity))

	_, err = client.ObjectInfo(ctx, "u4", "dips/d1", "d.tif")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrNotFound))
}

func TestConvertPostsDescriptor(t *testing.T) {
	var got storage.ConvertRequest
	client, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := client.Convert(context.Background(), storage.ConvertRequest{
		ObjectKey: storage.ObjectKey("dips/d1", "u1", "a.tif"),
		MimeType:  "image/tiff",
		UUID:      "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "preservation", got.Space)
	assert.Equal(t, "dips/d1/objects/u1-a.tif", got.ObjectKey)
}

func TestParseManifestRequiresChecksum(t *testing.T) {
	_, err := storage.ParseManifest([]byte(`<chunksManifest><header><sourceContent contentId="x"/></header></chunksManifest>`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrDataIntegrity))
}
