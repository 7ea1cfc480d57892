package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"

	"accession/internal/config"
	"accession/internal/services"
)

const userAgent = "accession/1"

// Event names a notification type.
type Event string

const (
	EventBatchQueued    Event = "batch_queued"
	EventBatchHalted    Event = "batch_halted"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries the values rendered into a notification.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
	return &ntfyService{endpoint: topic, client: client}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *resty.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(msg.body)
	if msg.title != "" {
		req.SetHeader("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.SetHeader("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.SetHeader("Priority", msg.priority)
	}
	resp, err := req.Post(n.endpoint)
	return services.CheckResponse("notifications", "ntfy", resp, err)
}

func render(event Event, payload Payload) (message, bool) {
	batch := stringValue(payload, "batch")
	switch event {
	case EventBatchQueued:
		return message{
			title: "Accession - Batch Queued",
			body:  fmt.Sprintf("Queued %s with %d packages", batch, intValue(payload, "packages")),
			tags:  []string{"accession", "batch", "queued"},
		}, true
	case EventBatchHalted:
		body := fmt.Sprintf("Batch %s halted", batch)
		if pkg := stringValue(payload, "package"); pkg != "" {
			body += " at " + pkg
		}
		if reason := stringValue(payload, "error"); reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "Accession - Batch Halted",
			body:     body,
			tags:     []string{"accession", "batch", "halted"},
			priority: "high",
		}, true
	case EventBatchCompleted:
		body := fmt.Sprintf("Batch %s complete: %d packages ingested", batch, intValue(payload, "succeeded"))
		if elapsed, ok := payload["elapsed"].(time.Duration); ok && elapsed > 0 {
			body += " in " + humanize.RelTime(time.Now().Add(-elapsed), time.Now(), "", "")
		}
		return message{
			title: "Accession - Batch Complete",
			body:  strings.TrimSpace(body),
			tags:  []string{"accession", "batch", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "Accession - Test",
			body:     "Notification system test",
			tags:     []string{"accession", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func stringValue(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	}
	return ""
}

func intValue(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
