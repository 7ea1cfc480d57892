package assembly

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"accession/internal/ingest"
	"accession/internal/services"
)

// FileGroupOriginal is the file group holding the submitted files.
const FileGroupOriginal = "original"

// formatMimeTypes maps PREMIS format names to mime types. Names are matched
// case-insensitively on their leading words so registry version suffixes
// ("Tagged Image File Format 6.0") still resolve. Documents are left to the
// FITS identity block.
var formatMimeTypes = []struct {
	prefix string
	mime   string
}{
	{"tagged image file format", "image/tiff"},
	{"tiff", "image/tiff"},
	{"jpeg 2000", "image/jp2"},
	{"jp2", "image/jp2"},
	{"jpeg", "image/jpeg"},
	{"portable network graphics", "image/png"},
	{"broadcast wave", "audio/wav"},
	{"waveform audio", "audio/wav"},
	{"wave", "audio/wav"},
	{"mpeg audio layer 3", "audio/mpeg"},
	{"mpeg-4 media file", "video/mp4"},
	{"mpeg-4", "video/mp4"},
	{"quicktime", "video/quicktime"},
}

type metsDocument struct {
	FileGroups []metsFileGroup `xml:"fileSec>fileGrp"`
	AmdSecs    []metsAmdSec    `xml:"amdSec"`
}

type metsFileGroup struct {
	Use   string     `xml:"USE,attr"`
	Files []metsFile `xml:"file"`
}

type metsFile struct {
	ID     string `xml:"ID,attr"`
	AdmID  string `xml:"ADMID,attr"`
	FLocat struct {
		Href string `xml:"href,attr"`
	} `xml:"FLocat"`
}

type metsAmdSec struct {
	ID      string         `xml:"ID,attr"`
	Objects []premisObject `xml:"techMD>mdWrap>xmlData>object"`
}

type premisObject struct {
	Identifier   string          `xml:"objectIdentifier>objectIdentifierValue"`
	OriginalName string          `xml:"originalName"`
	FormatName   string          `xml:"objectCharacteristics>format>formatDesignation>formatName"`
	Extension    premisExtension `xml:"objectCharacteristics>objectCharacteristicsExtension"`
}

type premisExtension struct {
	Identities []struct {
		MimeType string `xml:"mimetype,attr"`
	} `xml:"fits>identification>identity"`
	MediaInfoTracks []struct {
		Type          string `xml:"type,attr"`
		InternetMedia string `xml:"Internet_media_type"`
	} `xml:"Mediainfo>File>track"`
	ExifMIMEType string `xml:"RDF>Description>MIMEType"`
}

// ParseMETS lists the original files of a dissemination package. dipPath is
// stamped on every entry.
func ParseMETS(data []byte, dipPath string) ([]ingest.FileEntry, error) {
	var doc metsDocument
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	if err := decoder.Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrDataIntegrity, "assembly", "parse mets", "", err)
	}

	objects := make(map[string]premisObject, len(doc.AmdSecs))
	for _, sec := range doc.AmdSecs {
		if len(sec.Objects) > 0 {
			objects[sec.ID] = sec.Objects[0]
		}
	}

	var entries []ingest.FileEntry
	for _, group := range doc.FileGroups {
		if !strings.EqualFold(group.Use, FileGroupOriginal) {
			continue
		}
		for _, file := range group.Files {
			obj, ok := objects[firstField(file.AdmID)]
			entry := ingest.FileEntry{
				UUID:    fileUUID(file.ID, obj),
				File:    path.Base(strings.TrimSpace(file.FLocat.Href)),
				DIPPath: dipPath,
				Type:    group.Use,
			}
			if ok {
				entry.MimeType = objectMimeType(obj)
			}
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrDataIntegrity, "assembly", "parse mets", "no original files listed", nil)
	}
	return entries, nil
}

func fileUUID(id string, obj premisObject) string {
	if value := strings.TrimSpace(obj.Identifier); value != "" {
		return value
	}
	return strings.TrimPrefix(strings.TrimSpace(id), "file-")
}

func firstField(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// objectMimeType resolves the mime type from the PREMIS format name, then the
// tool blocks in the characteristics extension.
func objectMimeType(obj premisObject) string {
	if mime := mimeForFormat(obj.FormatName); mime != "" {
		return mime
	}
	for _, track := range obj.Extension.MediaInfoTracks {
		if strings.EqualFold(track.Type, "General") && strings.TrimSpace(track.InternetMedia) != "" {
			return strings.TrimSpace(track.InternetMedia)
		}
	}
	if mime := strings.TrimSpace(obj.Extension.ExifMIMEType); mime != "" {
		return mime
	}
	for _, identity := range obj.Extension.Identities {
		if mime := strings.TrimSpace(identity.MimeType); mime != "" {
			return mime
		}
	}
	return ""
}

func mimeForFormat(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	for _, candidate := range formatMimeTypes {
		if strings.HasPrefix(name, candidate.prefix) {
			return candidate.mime
		}
	}
	return ""
}
