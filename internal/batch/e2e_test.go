package batch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"accession/internal/batch"
	"accession/internal/config"
	"accession/internal/logging"
	"accession/internal/queue"
	"accession/internal/repository"
	"accession/internal/testsupport"
)

const metsTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<mets:mets xmlns:mets="http://www.loc.gov/METS/" xmlns:xlink="http://www.w3.org/1999/xlink" xmlns:premis="http://www.loc.gov/premis/v3">
  <mets:amdSec ID="amdSec_1">
    <mets:techMD ID="techMD_1">
      <mets:mdWrap MDTYPE="PREMIS:OBJECT">
        <mets:xmlData>
          <premis:object>
            <premis:objectIdentifier>
              <premis:objectIdentifierType>UUID</premis:objectIdentifierType>
              <premis:objectIdentifierValue>%[1]s</premis:objectIdentifierValue>
            </premis:objectIdentifier>
            <premis:objectCharacteristics>
              <premis:format>
                <premis:formatDesignation>
                  <premis:formatName>Tagged Image File Format</premis:formatName>
                </premis:formatDesignation>
              </premis:format>
            </premis:objectCharacteristics>
          </premis:object>
        </mets:xmlData>
      </mets:mdWrap>
    </mets:techMD>
  </mets:amdSec>
  <mets:fileSec>
    <mets:fileGrp USE="original">
      <mets:file ID="file-%[1]s" ADMID="amdSec_1">
        <mets:FLocat LOCTYPE="OTHER" xlink:href="objects/scan.tif"/>
      </mets:file>
    </mets:fileGrp>
  </mets:fileSec>
</mets:mets>`

// collaborators fakes every remote service the pipeline calls, routed by
// the path prefixes testsupport.WithServiceURL assigns.
type collaborators struct {
	mu           sync.Mutex
	hits         map[string]int
	folderErrors []string
	started      []string
	indexed      []string
}

func newCollaborators(t *testing.T) (*collaborators, *httptest.Server) {
	c := &collaborators{hits: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(server.Close)
	return c, server
}

func (c *collaborators) hitCount(service string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[service]
}

func (c *collaborators) serve(w http.ResponseWriter, r *http.Request) {
	service, rest, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	rest = "/" + rest
	c.mu.Lock()
	c.hits[service]++
	c.mu.Unlock()

	switch service {
	case "qa":
		c.serveQA(w, r, rest)
	case "metadata":
		c.serveMetadata(w, r, rest)
	case "transfer":
		c.serveTransfer(w, r, rest)
	case "storage":
		c.serveStorage(w, r, rest)
	case "handle":
		var body struct {
			UUID string `json:"uuid"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, map[string]string{"handle": "https://hdl.example.org/1234/" + body.UUID})
	case "search":
		c.mu.Lock()
		c.indexed = append(c.indexed, rest)
		c.mu.Unlock()
		writeJSON(w, map[string]string{"result": "created"})
	case "convert":
		writeJSON(w, map[string]string{"status": "queued"})
	default:
		http.NotFound(w, r)
	}
}

func (c *collaborators) serveQA(w http.ResponseWriter, r *http.Request, rest string) {
	pkg := r.URL.Query().Get("package")
	switch rest {
	case "/folders/set":
		writeJSON(w, map[string]any{"is_set": true})
	case "/folders/check-name":
		c.mu.Lock()
		problems := append([]string{}, c.folderErrors...)
		c.mu.Unlock()
		writeJSON(w, map[string]any{"folder_name_results": map[string]any{"errors": problems}})
	case "/packages/check-names":
		writeJSON(w, map[string]any{"package_name_results": map[string]any{"errors": []string{}}})
	case "/packages/check-uri-txt":
		writeJSON(w, map[string]any{"uri_results": map[string]any{"errors": []string{}}})
	case "/folders/size":
		writeJSON(w, map[string]any{"total_batch_size": map[string]any{"errors": []string{}, "result": 1 << 20}})
	case "/packages/uri":
		writeJSON(w, map[string]any{"uri": "/repositories/2/archival_objects/" + pkg})
	case "/packages/file-count":
		writeJSON(w, map[string]any{"file_count": 1})
	case "/packages/move-to-ingest", "/packages/move-to-sftp":
		writeJSON(w, map[string]any{"ok": true})
	case "/packages/upload-status":
		writeJSON(w, map[string]any{"data": map[string]any{"message": "upload_complete"}})
	default:
		http.NotFound(w, r)
	}
}

func (c *collaborators) serveMetadata(w http.ResponseWriter, r *http.Request, rest string) {
	switch {
	case rest == "/users/archivist/login":
		writeJSON(w, map[string]any{"session": "session-token"})
	case rest == "/logout":
		writeJSON(w, map[string]any{"status": "session_logged_out"})
	case r.Header.Get("X-Session-Token") != "session-token":
		http.Error(w, "forbidden", http.StatusForbidden)
	case rest == "/repositories/2/resources/7":
		writeJSON(w, map[string]any{"uri": rest, "title": "Field recordings"})
	case strings.HasPrefix(rest, "/repositories/2/archival_objects/"):
		pkg := strings.TrimPrefix(rest, "/repositories/2/archival_objects/")
		writeJSON(w, map[string]any{
			"uri":         rest,
			"title":       "Recording " + pkg,
			"identifiers": []map[string]string{{"type": "local", "identifier": "MS-" + pkg}},
			"parts":       []map[string]string{{"title": "scan.tif", "order": "1"}},
		})
	default:
		http.NotFound(w, r)
	}
}

func (c *collaborators) serveTransfer(w http.ResponseWriter, r *http.Request, rest string) {
	switch {
	case rest == "/api/transfer/start_transfer/":
		_ = r.ParseForm()
		name := r.PostForm.Get("name")
		c.mu.Lock()
		c.started = append(c.started, name)
		c.mu.Unlock()
		writeJSON(w, map[string]string{"message": "Copy successful.", "path": "/var/archivematica/transfers/" + name + "/"})
	case rest == "/api/transfer/unapproved":
		c.mu.Lock()
		results := make([]map[string]string, 0, len(c.started))
		for _, name := range c.started {
			results = append(results, map[string]string{"directory": name + "/", "uuid": "t-" + name})
		}
		c.mu.Unlock()
		writeJSON(w, map[string]any{"results": results})
	case rest == "/api/transfer/approve":
		_ = r.ParseForm()
		dir := strings.Trim(r.PostForm.Get("directory"), "/")
		writeJSON(w, map[string]string{"message": "Approval successful.", "uuid": "t-" + dir})
	case strings.HasPrefix(rest, "/api/transfer/status/"):
		id := strings.TrimPrefix(strings.Trim(strings.TrimPrefix(rest, "/api/transfer/status/"), "/"), "t-")
		writeJSON(w, map[string]string{"status": "COMPLETE", "sip_uuid": "s-" + id, "microservice": "Create SIP from transfer objects"})
	case strings.HasPrefix(rest, "/api/ingest/status/"):
		writeJSON(w, map[string]string{"status": "COMPLETE", "microservice": "Upload DIP"})
	case strings.HasSuffix(rest, "/dip/"):
		sip := strings.TrimSuffix(strings.TrimPrefix(rest, "/api/ingest/"), "/dip/")
		writeJSON(w, map[string]string{"path": "dips/" + strings.TrimPrefix(sip, "s-")})
	case r.Method == http.MethodDelete:
		writeJSON(w, map[string]bool{"removed": true})
	default:
		http.NotFound(w, r)
	}
}

func (c *collaborators) serveStorage(w http.ResponseWriter, r *http.Request, rest string) {
	// rest is /dips/<object>/...
	parts := strings.SplitN(strings.TrimPrefix(rest, "/dips/"), "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	object, key := parts[0], parts[1]
	fileUUID := "f-" + object
	switch {
	case key == "METS.s-"+object+".xml":
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, metsTemplate, fileUUID)
	case key == "objects/"+fileUUID+"-scan.tif" && r.Method == http.MethodHead:
		w.Header().Set("Content-MD5", "d41d8cd98f00b204e9800998ecf8427e")
		w.Header().Set("Content-Length", "2048")
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func newE2EDriver(t *testing.T, server *httptest.Server) (*batch.Driver, *queue.Store, *repository.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(server.URL), testsupport.WithoutDerivatives())
	cfg.Metadata.Username = "archivist"
	cfg.Metadata.Password = "secret"
	cfg.Storage.Space = ""

	store := testsupport.MustOpenStore(t, cfg)
	repo := openRepository(t, cfg)
	driver := batch.Build(cfg, store, repo, batch.NewClients(cfg), logging.NewNop(), batch.Options{})
	return driver, store, repo
}

func openRepository(t *testing.T, cfg *config.Config) *repository.Store {
	t.Helper()
	repo, err := repository.Open(cfg.Repository)
	if err != nil {
		t.Fatalf("repository.Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestDrainIngestsBatchEndToEnd(t *testing.T) {
	fake, server := newCollaborators(t)
	driver, store, repo := newE2EDriver(t, server)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, batchName, "pkg1", "pkg2")

	if err := driver.Drain(ctx, batchName); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	records, err := store.GetAll(ctx, queue.Fields{queue.ColBatch: batchName}, queue.Order{})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Status != queue.StatusComplete || !rec.Terminal || rec.Outcome != queue.OutcomeSuccess {
			t.Fatalf("record %s ended %s terminal=%v outcome=%s error=%q", rec.Package, rec.Status, rec.Terminal, rec.Outcome, rec.Error)
		}
		if rec.SIPUUID != "s-"+rec.ObjectUUID || rec.DIPPath != "dips/"+rec.ObjectUUID {
			t.Fatalf("record %s identifiers sip=%q dip=%q", rec.Package, rec.SIPUUID, rec.DIPPath)
		}
		if len(rec.IndexRecord) == 0 {
			t.Fatalf("record %s missing index record", rec.Package)
		}
	}

	collection, err := repo.CollectionByURI(ctx, "/repositories/2/resources/7")
	if err != nil || collection == nil {
		t.Fatalf("collection not created: %v", err)
	}
	members, err := repo.MembersOf(ctx, collection.UUID)
	if err != nil {
		t.Fatalf("MembersOf: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	for _, member := range members {
		if member.Checksum != "d41d8cd98f00b204e9800998ecf8427e" || member.FileSize != 2048 || member.MimeType != "image/tiff" {
			t.Fatalf("member %s master data = %q %d %q", member.UUID, member.Checksum, member.FileSize, member.MimeType)
		}
	}
	if got := len(fake.indexed); got != 3 {
		t.Fatalf("expected collection and two objects indexed, got %d", got)
	}
}

func TestDrainHaltsBatchWhenQAFails(t *testing.T) {
	fake, server := newCollaborators(t)
	fake.folderErrors = []string{"folder name must start with new_"}
	driver, store, repo := newE2EDriver(t, server)
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, batchName, "pkg1", "pkg2")

	if err := driver.Drain(ctx, batchName); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	records, err := store.GetAll(ctx, queue.Fields{queue.ColBatch: batchName}, queue.Order{})
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	for _, rec := range records {
		if rec.Status != queue.StatusHalted || !rec.Terminal {
			t.Fatalf("record %s ended %s terminal=%v", rec.Package, rec.Status, rec.Terminal)
		}
		if !strings.Contains(rec.Error, "Folder name errors") {
			t.Fatalf("record %s error = %q", rec.Package, rec.Error)
		}
	}
	if hits := fake.hitCount("transfer"); hits != 0 {
		t.Fatalf("transfer processor called %d times after QA failure", hits)
	}
	collection, err := repo.CollectionByURI(ctx, "/repositories/2/resources/7")
	if err != nil || collection == nil {
		t.Fatalf("collection should exist before QA checks: %v", err)
	}
	members, _ := repo.MembersOf(ctx, collection.UUID)
	if len(members) != 0 {
		t.Fatalf("expected no members, got %d", len(members))
	}
}
