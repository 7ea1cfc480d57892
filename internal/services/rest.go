package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 30 * time.Second

// NewRESTClient returns a resty client rooted at baseURL with the retry policy
// shared by every collaborator: three retries on 429 and 5xx responses.
func NewRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(baseURL), "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "accession/1").
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return false
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || (code >= 500 && code <= 504)
		})
}

// Seconds converts a configured timeout to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// CheckResponse turns a transport error or non-2xx response into a
// RemoteCallFailure. A 404 is tagged ErrNotFound instead.
func CheckResponse(stage, operation string, resp *resty.Response, err error) error {
	if err != nil {
		return Wrap(ErrRemoteCall, stage, operation, "request failed", err)
	}
	if resp == nil {
		return Wrap(ErrRemoteCall, stage, operation, "no response", nil)
	}
	if resp.IsSuccess() {
		return nil
	}
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode(), snippet(resp.String()))
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return Wrap(ErrNotFound, stage, operation, detail, nil)
	case http.StatusUnauthorized, http.StatusForbidden:
		return Wrap(ErrRemoteCall, stage, operation, detail, ErrRejected)
	}
	return Wrap(ErrRemoteCall, stage, operation, detail, nil)
}

// DecodeJSON unmarshals a successful response body. A malformed body is a
// DataIntegrityFailure since the collaborator answered but not as agreed.
func DecodeJSON(stage, operation string, resp *resty.Response, out any) error {
	body := resp.Body()
	if len(body) == 0 {
		return Wrap(ErrDataIntegrity, stage, operation, "empty response body", nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return Wrap(ErrDataIntegrity, stage, operation, "decode response", err)
	}
	return nil
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	const limit = 200
	if len(body) > limit {
		return body[:limit] + "..."
	}
	if body == "" {
		return "empty body"
	}
	return body
}
