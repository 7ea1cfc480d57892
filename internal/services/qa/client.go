package qa

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "qa"

// UploadComplete is the upload-status message reported once every expected
// file reached the bulk upload channel.
const UploadComplete = "upload_complete"

// CheckResult is the outcome of one QA validation. Any entry in Errors fails
// the check.
type CheckResult struct {
	Errors []string        `json:"errors"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Failed reports whether the check listed any problem.
func (r CheckResult) Failed() bool {
	for _, msg := range r.Errors {
		if strings.TrimSpace(msg) != "" {
			return true
		}
	}
	return false
}

// Message joins the reported problems for operator display.
func (r CheckResult) Message() string {
	return strings.Join(r.Errors, "; ")
}

// BatchSize is the total size of a batch folder as reported by QA.
type BatchSize struct {
	Errors []string `json:"errors"`
	Bytes  int64    `json:"result"`
}

// Client talks to the QA service.
type Client struct {
	http *resty.Client
}

// New constructs a client from configuration.
func New(cfg config.QA) *Client {
	http := services.NewRESTClient(cfg.BaseURL, services.Seconds(cfg.TimeoutSeconds))
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		http.SetHeader("X-API-Key", key)
	}
	return &Client{http: http}
}

// NewWithClient wraps an existing resty client, used by tests.
func NewWithClient(http *resty.Client) *Client {
	return &Client{http: http}
}

// SetFolderName registers the batch folder as the active QA subject.
func (c *Client) SetFolderName(ctx context.Context, folder string) (bool, error) {
	var payload struct {
		IsSet bool `json:"is_set"`
	}
	if err := c.get(ctx, "set folder name", "/folders/set", map[string]string{"folder": folder}, &payload); err != nil {
		return false, err
	}
	return payload.IsSet, nil
}

// CheckFolderName validates the batch folder naming convention.
func (c *Client) CheckFolderName(ctx context.Context, folder string) (CheckResult, error) {
	var payload struct {
		Results CheckResult `json:"folder_name_results"`
	}
	err := c.get(ctx, "check folder name", "/folders/check-name", map[string]string{"folder": folder}, &payload)
	return payload.Results, err
}

// CheckPackageNames validates the naming convention of every package in the folder.
func (c *Client) CheckPackageNames(ctx context.Context, folder string) (CheckResult, error) {
	var payload struct {
		Results CheckResult `json:"package_name_results"`
	}
	err := c.get(ctx, "check package names", "/packages/check-names", map[string]string{"folder": folder}, &payload)
	return payload.Results, err
}

// CheckURIFiles validates that every package carries a well-formed pointer
// file referencing its descriptive-metadata URI.
func (c *Client) CheckURIFiles(ctx context.Context, folder string) (CheckResult, error) {
	var payload struct {
		Results CheckResult `json:"uri_results"`
	}
	err := c.get(ctx, "check uri files", "/packages/check-uri-txt", map[string]string{"folder": folder}, &payload)
	return payload.Results, err
}

// TotalBatchSize returns the batch folder size in bytes.
func (c *Client) TotalBatchSize(ctx context.Context, folder string) (BatchSize, error) {
	var payload struct {
		Size BatchSize `json:"total_batch_size"`
	}
	err := c.get(ctx, "total batch size", "/folders/size", map[string]string{"folder": folder}, &payload)
	return payload.Size, err
}

// ListPackages returns the package names found in the batch folder.
func (c *Client) ListPackages(ctx context.Context, folder string) ([]string, error) {
	var payload struct {
		Packages []string `json:"packages"`
	}
	if err := c.get(ctx, "list packages", "/packages", map[string]string{"folder": folder}, &payload); err != nil {
		return nil, err
	}
	return payload.Packages, nil
}

// PackageFileCount returns the number of files in one package.
func (c *Client) PackageFileCount(ctx context.Context, folder, pkg string) (int, error) {
	var payload struct {
		FileCount int `json:"file_count"`
	}
	err := c.get(ctx, "package file count", "/packages/file-count", map[string]string{"folder": folder, "package": pkg}, &payload)
	return payload.FileCount, err
}

// PackageURI reads the package pointer file and returns the descriptive
// metadata URI it references. An empty string means the file was blank.
func (c *Client) PackageURI(ctx context.Context, folder, pkg string) (string, error) {
	var payload struct {
		URI string `json:"uri"`
	}
	err := c.get(ctx, "package uri", "/packages/uri", map[string]string{"folder": folder, "package": pkg}, &payload)
	return strings.TrimSpace(payload.URI), err
}

// MoveToIngest moves a package from the batch folder into processing intake
// under the object UUID.
func (c *Client) MoveToIngest(ctx context.Context, uuid, folder, pkg string) error {
	return c.post(ctx, "move to ingest", "/packages/move-to-ingest", map[string]string{
		"uuid":    uuid,
		"folder":  folder,
		"package": pkg,
	})
}

// MoveToSFTP hands the object to the bulk upload channel.
func (c *Client) MoveToSFTP(ctx context.Context, uuid string) error {
	return c.post(ctx, "move to sftp", "/packages/move-to-sftp", map[string]string{"uuid": uuid})
}

// UploadStatus reports the upload progress message for an object.
// UploadComplete means every expected file arrived.
func (c *Client) UploadStatus(ctx context.Context, uuid string, expected int) (string, error) {
	var payload struct {
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	err := c.get(ctx, "upload status", "/packages/upload-status", map[string]string{
		"uuid":                uuid,
		"expected_file_count": strconv.Itoa(expected),
	}, &payload)
	return strings.TrimSpace(payload.Data.Message), err
}

func (c *Client) get(ctx context.Context, operation, path string, params map[string]string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
	if err := services.CheckResponse(stage, operation, resp, err); err != nil {
		return err
	}
	return services.DecodeJSON(stage, operation, resp, out)
}

func (c *Client) post(ctx context.Context, operation, path string, body any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	return services.CheckResponse(stage, operation, resp, err)
}
