package finalize_test

import (
	"encoding/json"
	"strings"
	"testing"

	"accession/internal/finalize"
	"accession/internal/repository"
	"accession/internal/services/metadata"
)

func sampleDescriptive() *metadata.Record {
	return &metadata.Record{
		URI:         "/repositories/2/archival_objects/88",
		Title:       " Letter to the Board ",
		Identifiers: []metadata.Identifier{{Type: "ark", Value: "ark:/1/x"}, {Type: "local", Value: "MS-0042-001"}},
		Names: []metadata.Name{
			{Title: "Ada Surveyor", Role: "Creator"},
			{Title: "Archive Staff", Role: "contributor"},
		},
		Subjects: []metadata.Subject{{Title: "Surveying"}, {Title: "Surveying"}, {Title: " "}, {Title: "Maps"}},
		Notes: []metadata.Note{
			{Type: "abstract", Content: "First paragraph."},
			{Type: "ABSTRACT", Content: "Second paragraph."},
			{Type: "scopecontent", Content: "ignored"},
		},
		IsCompound: true,
		Dates:      []metadata.Date{{Expression: "circa 1901"}, {Begin: "1900", End: "1902"}},
	}
}

func TestIndexRecordRoundTrip(t *testing.T) {
	obj := &repository.Object{
		UUID:                 "obj-1",
		ObjectType:           repository.TypeObject,
		IsMemberOfCollection: "col-1",
		Handle:               "https://hdl.example.org/10176/obj-1",
		IsCompound:           true,
	}
	rec := finalize.BuildIndexRecord(obj, sampleDescriptive())
	data, err := rec.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	back, err := finalize.ParseIndexRecord(data)
	if err != nil {
		t.Fatalf("ParseIndexRecord: %v", err)
	}
	if back.Title != "Letter to the Board" {
		t.Fatalf("title = %q", back.Title)
	}
	if back.CallNumber != "MS-0042-001" {
		t.Fatalf("call number = %q", back.CallNumber)
	}
	if !back.IsCompound || back.IsPublished {
		t.Fatalf("flags compound=%v published=%v", back.IsCompound, back.IsPublished)
	}
	if len(back.Creator) != 1 || back.Creator[0] != "Ada Surveyor" {
		t.Fatalf("creator = %v", back.Creator)
	}
	if strings.Join(back.Subjects, "|") != "Surveying|Maps" {
		t.Fatalf("subjects = %v", back.Subjects)
	}
	if back.Abstract != "First paragraph.\n\nSecond paragraph." {
		t.Fatalf("abstract = %q", back.Abstract)
	}
	if strings.Join(back.Dates, "|") != "circa 1901|1900/1902" {
		t.Fatalf("dates = %v", back.Dates)
	}
}

func TestIndexRecordOmitsAbsentFields(t *testing.T) {
	rec := finalize.BuildIndexRecord(&repository.Object{UUID: "obj-2", ObjectType: repository.TypeObject},
		&metadata.Record{Title: "Untitled map"})
	data, err := rec.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"call_number", "creator", "f_subjects", "abstract", "dates", "handle"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("expected %q to be omitted from %s", key, data)
		}
	}
	if raw["is_published"] != false {
		t.Fatalf("is_published = %v", raw["is_published"])
	}
}

func TestParseIndexRecordRejectsGarbage(t *testing.T) {
	if _, err := finalize.ParseIndexRecord([]byte("{not json")); err == nil {
		t.Fatal("expected error")
	}
}
