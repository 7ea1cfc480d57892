package finalize

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"accession/internal/repository"
	"accession/internal/services"
	"accession/internal/services/metadata"
)

// IndexRecord is the search-index projection of a repository record.
// Optional fields are omitted when the descriptive record lacks them.
type IndexRecord struct {
	UUID                 string   `json:"uuid"`
	ObjectType           string   `json:"object_type"`
	IsMemberOfCollection string   `json:"is_member_of_collection,omitempty"`
	Handle               string   `json:"handle,omitempty"`
	URI                  string   `json:"uri,omitempty"`
	Title                string   `json:"title"`
	CallNumber           string   `json:"call_number,omitempty"`
	Creator              []string `json:"creator,omitempty"`
	Subjects             []string `json:"f_subjects,omitempty"`
	Abstract             string   `json:"abstract,omitempty"`
	Dates                []string `json:"dates,omitempty"`
	Thumbnail            string   `json:"thumbnail,omitempty"`
	MimeType             string   `json:"mime_type,omitempty"`
	IsCompound           bool     `json:"is_compound"`
	IsPublished          bool     `json:"is_published"`
}

// BuildIndexRecord projects a repository record and its descriptive record
// into an index document. It has no side effects.
func BuildIndexRecord(obj *repository.Object, desc *metadata.Record) IndexRecord {
	rec := IndexRecord{}
	if obj != nil {
		rec.UUID = obj.UUID
		rec.ObjectType = obj.ObjectType
		rec.IsMemberOfCollection = obj.IsMemberOfCollection
		rec.Handle = obj.Handle
		rec.URI = obj.URI
		rec.Thumbnail = obj.Thumbnail
		rec.MimeType = obj.MimeType
		rec.IsCompound = obj.IsCompound
		rec.IsPublished = obj.IsPublished
	}
	if desc == nil {
		return rec
	}
	rec.Title = strings.TrimSpace(desc.Title)
	rec.CallNumber = desc.CallNumber()
	rec.Creator = desc.NamesWithRole("creator")
	rec.Subjects = lo.Uniq(lo.FilterMap(desc.Subjects, func(s metadata.Subject, _ int) (string, bool) {
		title := strings.TrimSpace(s.Title)
		return title, title != ""
	}))
	if abstracts := desc.NotesOfType("abstract"); len(abstracts) > 0 {
		rec.Abstract = strings.Join(abstracts, "\n\n")
	}
	rec.Dates = lo.FilterMap(desc.Dates, func(d metadata.Date, _ int) (string, bool) {
		switch {
		case strings.TrimSpace(d.Expression) != "":
			return strings.TrimSpace(d.Expression), true
		case d.Begin != "" && d.End != "":
			return d.Begin + "/" + d.End, true
		default:
			return d.Begin, d.Begin != ""
		}
	})
	if len(rec.Subjects) == 0 {
		rec.Subjects = nil
	}
	if len(rec.Dates) == 0 {
		rec.Dates = nil
	}
	return rec
}

// JSON encodes the projection.
func (r IndexRecord) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// ParseIndexRecord decodes a projection produced by JSON.
func ParseIndexRecord(data []byte) (IndexRecord, error) {
	var rec IndexRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return IndexRecord{}, services.Wrap(services.ErrDataIntegrity, "finalize", "parse index record", "", err)
	}
	return rec, nil
}
