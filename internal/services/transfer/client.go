package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "transfer"

// Status values reported for transfers and ingests.
const (
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
	StatusProcessing = "PROCESSING"
	StatusRejected   = "REJECTED"
	StatusUserInput  = "USER_INPUT"
)

// StartResult is the processor's reply to a transfer start request.
type StartResult struct {
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Copied reports whether the processor confirmed the copy into its watched
// directory.
func (r StartResult) Copied() bool {
	return strings.Contains(strings.ToLower(r.Message), "success") && strings.TrimSpace(r.Path) != ""
}

// ApproveResult is the processor's reply to an approval request.
type ApproveResult struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
}

// Status is a transfer or ingest status snapshot.
type Status struct {
	Status       string `json:"status"`
	SIPUUID      string `json:"sip_uuid,omitempty"`
	MicroService string `json:"microservice"`
	Message      string `json:"message,omitempty"`
}

// Complete reports whether the unit finished successfully.
func (s Status) Complete() bool { return strings.EqualFold(s.Status, StatusComplete) }

// Failed reports whether the unit stopped with a failure.
func (s Status) Failed() bool {
	return strings.EqualFold(s.Status, StatusFailed) || strings.EqualFold(s.Status, StatusRejected)
}

// Client talks to the archival transfer processor.
type Client struct {
	http           *resty.Client
	sourceLocation string
	transferType   string
}

// New constructs a client from configuration.
func New(cfg config.Transfer) *Client {
	http := services.NewRESTClient(cfg.BaseURL, services.Seconds(cfg.TimeoutSeconds))
	if cfg.Username != "" || cfg.APIKey != "" {
		http.SetHeader("Authorization", fmt.Sprintf("ApiKey %s:%s", cfg.Username, cfg.APIKey))
	}
	transferType := strings.TrimSpace(cfg.TransferType)
	if transferType == "" {
		transferType = "standard"
	}
	return &Client{
		http:           http,
		sourceLocation: strings.TrimSpace(cfg.SourceLocation),
		transferType:   transferType,
	}
}

// StartTransfer asks the processor to copy the object folder from the
// configured source location into its transfer area. The transfer is named
// after the object and accessioned under the collection.
func (c *Client) StartTransfer(ctx context.Context, collectionUUID, objectUUID string) (StartResult, error) {
	source := objectUUID
	if c.sourceLocation != "" {
		source = c.sourceLocation + ":" + strings.Trim(collectionUUID+"/"+objectUUID, "/")
	}
	var result StartResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"name":      objectUUID,
			"type":      c.transferType,
			"accession": collectionUUID,
			"paths[]":   base64.StdEncoding.EncodeToString([]byte(source)),
		}).
		Post("/api/transfer/start_transfer/")
	if err := services.CheckResponse(stage, "start transfer", resp, err); err != nil {
		return result, err
	}
	err = services.DecodeJSON(stage, "start transfer", resp, &result)
	return result, err
}

// UnapprovedTransfers lists the directories of transfers awaiting approval.
func (c *Client) UnapprovedTransfers(ctx context.Context) ([]string, error) {
	var payload struct {
		Results []struct {
			Directory string `json:"directory"`
			UUID      string `json:"uuid"`
		} `json:"results"`
	}
	if err := c.get(ctx, "unapproved transfers", "/api/transfer/unapproved", &payload); err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(payload.Results))
	for _, result := range payload.Results {
		dirs = append(dirs, result.Directory)
	}
	return dirs, nil
}

// ApproveTransfer approves the transfer in directory.
func (c *Client) ApproveTransfer(ctx context.Context, directory string) (ApproveResult, error) {
	var result ApproveResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"type": c.transferType, "directory": directory}).
		Post("/api/transfer/approve")
	if err := services.CheckResponse(stage, "approve transfer", resp, err); err != nil {
		return result, err
	}
	err = services.DecodeJSON(stage, "approve transfer", resp, &result)
	return result, err
}

// TransferStatus reports the state of a transfer. A completed transfer
// carries the SIP UUID of the ingest it produced.
func (c *Client) TransferStatus(ctx context.Context, transferUUID string) (Status, error) {
	var status Status
	err := c.get(ctx, "transfer status", "/api/transfer/status/"+url.PathEscape(transferUUID)+"/", &status)
	return status, err
}

// ClearTransfer removes a finished transfer from the processor dashboard.
func (c *Client) ClearTransfer(ctx context.Context, transferUUID string) error {
	return c.delete(ctx, "clear transfer", "/api/transfer/"+url.PathEscape(transferUUID)+"/delete/")
}

// IngestStatus reports the state of an ingest.
func (c *Client) IngestStatus(ctx context.Context, sipUUID string) (Status, error) {
	var status Status
	err := c.get(ctx, "ingest status", "/api/ingest/status/"+url.PathEscape(sipUUID)+"/", &status)
	return status, err
}

// ClearIngest removes a finished ingest from the processor dashboard.
func (c *Client) ClearIngest(ctx context.Context, sipUUID string) error {
	return c.delete(ctx, "clear ingest", "/api/ingest/"+url.PathEscape(sipUUID)+"/delete/")
}

// DIPPath returns the storage path of the dissemination package produced by
// an ingest.
func (c *Client) DIPPath(ctx context.Context, sipUUID string) (string, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := c.get(ctx, "dip path", "/api/ingest/"+url.PathEscape(sipUUID)+"/dip/", &payload); err != nil {
		return "", err
	}
	path := strings.Trim(strings.TrimSpace(payload.Path), "/")
	if path == "" {
		return "", services.Wrap(services.ErrDataIntegrity, stage, "dip path", "empty path for "+sipUUID, nil)
	}
	return path, nil
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err := services.CheckResponse(stage, operation, resp, err); err != nil {
		return err
	}
	return services.DecodeJSON(stage, operation, resp, out)
}

func (c *Client) delete(ctx context.Context, operation, path string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(path)
	return services.CheckResponse(stage, operation, resp, err)
}
