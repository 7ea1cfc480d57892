package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jellydator/ttlcache/v3"

	"accession/internal/config"
	"accession/internal/services"
)

const (
	stage         = "metadata"
	sessionHeader = "X-Session-Token"
	sessionKey    = "session"
)

// Client talks to the descriptive-metadata repository.
type Client struct {
	http     *resty.Client
	username string
	password string

	mu       sync.Mutex
	sessions *ttlcache.Cache[string, string]
}

// New constructs a client from configuration.
func New(cfg config.Metadata) *Client {
	ttl := services.Seconds(cfg.SessionTTLSeconds)
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Client{
		http:     services.NewRESTClient(cfg.BaseURL, services.Seconds(cfg.TimeoutSeconds)),
		username: cfg.Username,
		password: cfg.Password,
		sessions: ttlcache.New(ttlcache.WithTTL[string, string](ttl)),
	}
}

// SessionToken returns the cached session token, logging in when none is
// cached or the cached one expired.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item := c.sessions.Get(sessionKey); item != nil {
		return item.Value(), nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{"password": c.password}).
		Post("/users/" + url.PathEscape(c.username) + "/login")
	if err := services.CheckResponse(stage, "login", resp, err); err != nil {
		return "", err
	}
	var payload struct {
		Session string `json:"session"`
	}
	if err := services.DecodeJSON(stage, "login", resp, &payload); err != nil {
		return "", err
	}
	token := strings.TrimSpace(payload.Session)
	if token == "" {
		return "", services.Wrap(services.ErrDataIntegrity, stage, "login", "empty session token", nil)
	}
	c.sessions.Set(sessionKey, token, ttlcache.DefaultTTL)
	return token, nil
}

// Record fetches and decodes the descriptive record at uri.
func (c *Client) Record(ctx context.Context, uri, token string) (*Record, error) {
	uri = "/" + strings.TrimLeft(strings.TrimSpace(uri), "/")
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(sessionHeader, token).
		Get(uri)
	if err := services.CheckResponse(stage, "get record", resp, err); err != nil {
		return nil, err
	}
	var record Record
	if err := services.DecodeJSON(stage, "get record", resp, &record); err != nil {
		return nil, err
	}
	record.Raw = json.RawMessage(append([]byte(nil), resp.Body()...))
	if record.URI == "" {
		record.URI = uri
	}
	return &record, nil
}

// Fetch fetches a record using the cached session token. A token the
// repository rejects, typically one logged out by another batch, is dropped
// and the fetch is retried once with a fresh login.
func (c *Client) Fetch(ctx context.Context, uri string) (*Record, error) {
	token, err := c.SessionToken(ctx)
	if err != nil {
		return nil, err
	}
	record, err := c.Record(ctx, uri, token)
	if err == nil || !errors.Is(err, services.ErrRejected) {
		return record, err
	}
	c.forget(token)
	if token, err = c.SessionToken(ctx); err != nil {
		return nil, err
	}
	return c.Record(ctx, uri, token)
}

// forget drops token from the cache unless a newer login replaced it.
func (c *Client) forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item := c.sessions.Get(sessionKey); item != nil && item.Value() == token {
		c.sessions.Delete(sessionKey)
	}
}

// Resources returns the component tree of a resource.
func (c *Client) Resources(ctx context.Context, repositoryID, resourceURI, token string) (json.RawMessage, error) {
	resourceURI = strings.Trim(strings.TrimSpace(resourceURI), "/")
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(sessionHeader, token).
		SetQueryParam("repository", repositoryID).
		Get("/" + resourceURI + "/tree")
	if err := services.CheckResponse(stage, "get resources", resp, err); err != nil {
		return nil, err
	}
	if !json.Valid(resp.Body()) {
		return nil, services.Wrap(services.ErrDataIntegrity, stage, "get resources", "malformed tree", nil)
	}
	return json.RawMessage(append([]byte(nil), resp.Body()...)), nil
}

// DestroySession logs the token out of the repository.
func (c *Client) DestroySession(ctx context.Context, token string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(sessionHeader, token).
		Post("/logout")
	return services.CheckResponse(stage, "logout", resp, err)
}

// EndSession destroys the cached session, if any.
func (c *Client) EndSession(ctx context.Context) error {
	c.mu.Lock()
	item := c.sessions.Get(sessionKey)
	if item == nil {
		c.mu.Unlock()
		return nil
	}
	c.sessions.Delete(sessionKey)
	c.mu.Unlock()
	return c.DestroySession(ctx, item.Value())
}
