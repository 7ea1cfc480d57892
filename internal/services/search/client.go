// Package search publishes repository records to the search index.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const stage = "search"

// Client talks to the search index.
type Client struct {
	http  *resty.Client
	index string
}

// New constructs a client from configuration.
func New(cfg config.Search) *Client {
	index := strings.Trim(strings.TrimSpace(cfg.Index), "/")
	if index == "" {
		index = "repository"
	}
	return &Client{
		http:  services.NewRESTClient(cfg.BaseURL, services.Seconds(cfg.TimeoutSeconds)),
		index: index,
	}
}

// Index stores document under id, replacing any previous version.
func (c *Client) Index(ctx context.Context, id string, document any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(document).
		Put("/" + url.PathEscape(c.index) + "/_doc/" + url.PathEscape(id))
	return services.CheckResponse(stage, "index", resp, err)
}
