package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"accession/internal/config"
	"accession/internal/logging"
	"accession/internal/queue"
)

// Observer publishes batch lifecycle notifications. It satisfies
// batch.Observer.
type Observer struct {
	service Service
	toggles config.Notifications
	logger  *slog.Logger
}

// NewObserver wraps service with the event toggles from cfg.
func NewObserver(service Service, cfg config.Notifications, logger *slog.Logger) *Observer {
	if service == nil {
		service = noopService{}
	}
	return &Observer{
		service: service,
		toggles: cfg,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

// BatchQueued announces a newly enqueued batch.
func (o *Observer) BatchQueued(ctx context.Context, batch string, packages int) {
	if !o.toggles.BatchQueued {
		return
	}
	o.publish(ctx, EventBatchQueued, Payload{"batch": batch, "packages": packages})
}

// BatchStarted is a no-op; drains start too often to be worth a push.
func (o *Observer) BatchStarted(string) {}

// BatchFinished announces a halted or fully ingested batch.
func (o *Observer) BatchFinished(batch string, summary queue.BatchSummary, elapsed time.Duration) {
	ctx := context.Background()
	switch {
	case summary.Halted() && o.toggles.BatchHalted:
		o.publish(ctx, EventBatchHalted, Payload{
			"batch": batch,
			"error": summary.Error,
		})
	case summary.Done() && !summary.Halted() && o.toggles.BatchCompleted:
		o.publish(ctx, EventBatchCompleted, Payload{
			"batch":     batch,
			"succeeded": summary.Succeeded,
			"elapsed":   elapsed,
		})
	}
}

func (o *Observer) publish(ctx context.Context, event Event, payload Payload) {
	if err := o.service.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			o.logger.Debug("notification cancelled", logging.String("event", string(event)))
			return
		}
		logging.WarnWithContext(o.logger, "notification not delivered", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operators will not be alerted for this event"),
		)
	}
}
