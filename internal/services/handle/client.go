// Package handle mints persistent identifiers for repository objects.
package handle

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "handle"

// Client talks to the handle service.
type Client struct {
	http           *resty.Client
	prefix         string
	targetTemplate string
}

// New constructs a client from configuration. TargetTemplate may contain
// "{uuid}", replaced with the object UUID to build the resolution target.
func New(cfg config.Handle) *Client {
	http := services.NewRESTClient(cfg.BaseURL, services.Seconds(cfg.TimeoutSeconds))
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		http.SetHeader("X-API-Key", key)
	}
	return &Client{
		http:           http,
		prefix:         strings.TrimSpace(cfg.Prefix),
		targetTemplate: strings.TrimSpace(cfg.TargetTemplate),
	}
}

// CreateHandle registers a handle for uuid and returns its resolvable URL.
func (c *Client) CreateHandle(ctx context.Context, uuid string) (string, error) {
	var payload struct {
		Handle string `json:"handle"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"prefix": c.prefix,
			"uuid":   uuid,
			"target": strings.ReplaceAll(c.targetTemplate, "{uuid}", uuid),
		}).
		Post("/handles")
	if err := services.CheckResponse(stage, "create handle", resp, err); err != nil {
		return "", err
	}
	if err := services.DecodeJSON(stage, "create handle", resp, &payload); err != nil {
		return "", err
	}
	handle := strings.TrimSpace(payload.Handle)
	if handle == "" {
		return "", services.Wrap(services.ErrDataIntegrity, stage, "create handle", "empty handle for "+uuid, nil)
	}
	return handle, nil
}
