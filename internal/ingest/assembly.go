package ingest

import (
	"encoding/json"

	"accession/internal/services/metadata"
)

// FileEntry is one physical file listed in a dissemination package's
// structural manifest.
type FileEntry struct {
	UUID     string `json:"uuid"`
	File     string `json:"file"`
	MimeType string `json:"mime_type"`
	DIPPath  string `json:"dip_path"`
	Type     string `json:"type"`
}

// ObjectPart is a descriptive part matched to its preserved file.
type ObjectPart struct {
	Title     string `json:"title"`
	Order     string `json:"order"`
	Type      string `json:"type,omitempty"`
	Caption   string `json:"caption,omitempty"`
	UUID      string `json:"uuid"`
	MimeType  string `json:"mime_type,omitempty"`
	Object    string `json:"object"`
	Thumbnail string `json:"thumbnail"`
}

// Master is the primary file of an object with its resolved fixity.
// File carries the manifest suffix when the object was stored in chunks.
type Master struct {
	UUID      string `json:"uuid"`
	File      string `json:"file"`
	Object    string `json:"object"`
	Thumbnail string `json:"thumbnail"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum"`
	Size      int64  `json:"file_size"`
	Chunked   bool   `json:"chunked"`
}

// Transcript is the optional transcription attached to an object.
type Transcript struct {
	CallNumber string          `json:"call_number"`
	Transcript json.RawMessage `json:"transcript"`
	SearchText string          `json:"search_text,omitempty"`
}

// Assembly is the output of metadata and object assembly, consumed by the
// finalizer.
type Assembly struct {
	Descriptive *metadata.Record
	Files       []FileEntry
	Parts       []ObjectPart
	Master      Master
	Transcript  *Transcript
}
