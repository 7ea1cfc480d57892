// Package notifications delivers batch lifecycle events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Observer
// adapts a Service to the batch driver's start/finish callbacks and applies
// the per-event toggles from the [notifications] config section.
package notifications
