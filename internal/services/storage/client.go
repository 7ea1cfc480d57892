package storage

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "storage"

// DefaultManifestSuffix is appended to an object key to address its chunk manifest.
const DefaultManifestSuffix = ".dura-manifest"

// ObjectInfo is the checksum and size reported for a stored object.
type ObjectInfo struct {
	MD5    string
	Length int64
}

// Manifest is the source content described by a chunk manifest.
type Manifest struct {
	ContentID string
	MimeType  string
	MD5       string
	Size      int64
}

// ConvertRequest asks the derivative service to build a web-viewable copy of
// one stored object.
type ConvertRequest struct {
	Space     string `json:"space"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
	UUID      string `json:"uuid"`
	Target    string `json:"target,omitempty"`
}

// Client talks to object storage and the derivative conversion service.
type Client struct {
	http           *resty.Client
	convert        *resty.Client
	convertURL     string
	space          string
	manifestSuffix string
}

// New constructs a client from configuration.
func New(cfg config.Storage) *Client {
	timeout := services.Seconds(cfg.TimeoutSeconds)
	http := services.NewRESTClient(cfg.BaseURL, timeout)
	if cfg.Username != "" || cfg.Token != "" {
		http.SetBasicAuth(cfg.Username, cfg.Token)
	}
	suffix := strings.TrimSpace(cfg.ManifestSuffix)
	if suffix == "" {
		suffix = DefaultManifestSuffix
	}
	return &Client{
		http:           http,
		convert:        services.NewRESTClient("", timeout),
		convertURL:     strings.TrimSpace(cfg.ConvertURL),
		space:          strings.Trim(cfg.Space, "/"),
		manifestSuffix: suffix,
	}
}

// ManifestSuffix returns the configured chunk manifest suffix.
func (c *Client) ManifestSuffix() string {
	return c.manifestSuffix
}

// ObjectKey is the storage key of a preserved file inside a dissemination package.
func ObjectKey(dipPath, uuid, file string) string {
	return strings.Trim(dipPath, "/") + "/objects/" + uuid + "-" + file
}

// ThumbnailKey is the storage key of the thumbnail generated for a file.
func ThumbnailKey(dipPath, uuid string) string {
	return strings.Trim(dipPath, "/") + "/thumbnails/" + uuid + ".jpg"
}

// METSKey is the storage key of the structural manifest of a dissemination package.
func METSKey(dipPath, sipUUID string) string {
	return strings.Trim(dipPath, "/") + "/METS." + sipUUID + ".xml"
}

// METS downloads the structural manifest of a dissemination package.
func (c *Client) METS(ctx context.Context, sipUUID, dipPath string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/xml").
		Get(c.path(METSKey(dipPath, sipUUID)))
	if err := services.CheckResponse(stage, "get mets", resp, err); err != nil {
		return nil, err
	}
	if len(resp.Body()) == 0 {
		return nil, services.Wrap(services.ErrDataIntegrity, stage, "get mets", "empty document", nil)
	}
	return resp.Body(), nil
}

// ObjectManifest fetches and decodes the chunk manifest of an object. found
// is false when the object was stored whole.
func (c *Client) ObjectManifest(ctx context.Context, uuid, dipPath, file string) (Manifest, bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/xml").
		Get(c.path(ObjectKey(dipPath, uuid, file) + c.manifestSuffix))
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return Manifest{}, false, nil
	}
	if err := services.CheckResponse(stage, "get object manifest", resp, err); err != nil {
		return Manifest{}, false, err
	}
	manifest, err := ParseManifest(resp.Body())
	if err != nil {
		return Manifest{}, false, err
	}
	return manifest, true, nil
}

// ObjectInfo reads the checksum and size of a whole stored object.
func (c *Client) ObjectInfo(ctx context.Context, uuid, dipPath, file string) (ObjectInfo, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Head(c.path(ObjectKey(dipPath, uuid, file)))
	if err := services.CheckResponse(stage, "get object info", resp, err); err != nil {
		return ObjectInfo{}, err
	}
	info := ObjectInfo{MD5: strings.TrimSpace(resp.Header().Get("Content-MD5"))}
	if raw := strings.TrimSpace(resp.Header().Get("Content-Length")); raw != "" {
		length, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ObjectInfo{}, services.Wrap(services.ErrDataIntegrity, stage, "get object info", "invalid content-length "+raw, err)
		}
		info.Length = length
	} else if resp.RawResponse != nil && resp.RawResponse.ContentLength > 0 {
		info.Length = resp.RawResponse.ContentLength
	}
	if info.MD5 == "" {
		return ObjectInfo{}, services.Wrap(services.ErrDataIntegrity, stage, "get object info", "missing content-md5", nil)
	}
	return info, nil
}

// Convert submits a derivative request.
func (c *Client) Convert(ctx context.Context, req ConvertRequest) error {
	if c.convertURL == "" {
		return services.Wrap(services.ErrConfiguration, stage, "convert", "convert_url not configured", nil)
	}
	if req.Space == "" {
		req.Space = c.space
	}
	resp, err := c.convert.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.convertURL)
	return services.CheckResponse(stage, "convert", resp, err)
}

func (c *Client) path(key string) string {
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	if c.space == "" {
		return "/" + strings.Join(segments, "/")
	}
	return "/" + c.space + "/" + strings.Join(segments, "/")
}

type manifestDocument struct {
	XMLName xml.Name `xml:"chunksManifest"`
	Source  struct {
		ContentID string `xml:"contentId,attr"`
		MimeType  string `xml:"mimetype"`
		ByteSize  int64  `xml:"byteSize"`
		MD5       string `xml:"md5"`
	} `xml:"header>sourceContent"`
}

// ParseManifest decodes the source content section of a chunk manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var doc manifestDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Manifest{}, services.Wrap(services.ErrDataIntegrity, stage, "parse manifest", "", err)
	}
	manifest := Manifest{
		ContentID: strings.TrimSpace(doc.Source.ContentID),
		MimeType:  strings.TrimSpace(doc.Source.MimeType),
		MD5:       strings.TrimSpace(doc.Source.MD5),
		Size:      doc.Source.ByteSize,
	}
	if manifest.MD5 == "" {
		return Manifest{}, services.Wrap(services.ErrDataIntegrity, stage, "parse manifest", "missing source md5", nil)
	}
	return manifest, nil
}
