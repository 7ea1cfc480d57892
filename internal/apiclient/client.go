// Package apiclient talks to the accessiond HTTP API on behalf of the CLI.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"accession/internal/api"
)

// ErrUnavailable marks transport failures reaching the daemon.
var ErrUnavailable = errors.New("daemon unavailable")

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a daemon reply with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client provides typed access to the daemon API.
type Client struct {
	http *resty.Client
}

// New returns a client for the daemon listening at baseURL. A bare
// host:port is treated as http.
func New(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(base).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "accession-cli/1").
			SetTimeout(timeout),
	}
}

// Enqueue queues packages under batch. An empty package list asks the daemon
// to read the batch folder from the QA service.
func (c *Client) Enqueue(ctx context.Context, batch string, packages []string) (api.EnqueueResponse, error) {
	var out api.EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/api/batches", api.EnqueueRequest{Batch: batch, Packages: packages}, &out)
	return out, err
}

// Batches lists every batch in the queue.
func (c *Client) Batches(ctx context.Context) ([]api.Batch, error) {
	var out api.BatchListResponse
	if err := c.do(ctx, http.MethodGet, "/api/batches", nil, &out); err != nil {
		return nil, err
	}
	return out.Batches, nil
}

// Batch returns one batch with its records, or nil when the daemon does not
// know it.
func (c *Client) Batch(ctx context.Context, name string) (*api.BatchDetail, error) {
	var out api.BatchDetail
	err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(name), nil, &out)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StartBatch force-starts a batch regardless of auto-start.
func (c *Client) StartBatch(ctx context.Context, name string) (api.StartResponse, error) {
	var out api.StartResponse
	err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(name)+"/start", nil, &out)
	return out, err
}

// ClearQueue removes the records of batch, or the whole queue when batch is
// empty.
func (c *Client) ClearQueue(ctx context.Context, batch string) (api.ClearResponse, error) {
	var out api.ClearResponse
	path := "/api/queue"
	if batch = strings.TrimSpace(batch); batch != "" {
		path += "?batch=" + url.QueryEscape(batch)
	}
	err := c.do(ctx, http.MethodDelete, path, nil, &out)
	return out, err
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&api.ErrorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &Error{StatusCode: resp.StatusCode()}
	if payload, ok := resp.Error().(*api.ErrorResponse); ok && payload != nil {
		apiErr.Message = payload.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}
