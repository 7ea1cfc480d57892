package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every error that leaves a pipeline stage carries exactly
// one of these so the recorder and operators can classify it.
var (
	ErrValidation    = errors.New("validation failure")
	ErrRemoteCall    = errors.New("remote call failure")
	ErrDataIntegrity = errors.New("data integrity failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// ErrRejected is wrapped under ErrRemoteCall when a collaborator answers 401
// or 403, so clients holding session tokens can log in again.
var ErrRejected = errors.New("credentials rejected")

// Kind names the failure class for logs and API payloads.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindRemoteCall    Kind = "remote_call"
	KindDataIntegrity Kind = "data_integrity"
	KindPersistence   Kind = "persistence"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindUnknown       Kind = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrRemoteCall
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns the failure class of err. Timeouts are reported ahead of
// remote-call failures since a poll exhaustion wraps both.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDataIntegrity):
		return KindDataIntegrity
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRemoteCall):
		return KindRemoteCall
	default:
		return KindUnknown
	}
}

// ValidationErrors aggregates data problems found in a collaborator response
// so they can be surfaced to the operator in one message.
type ValidationErrors struct {
	Subject  string
	Problems []string
}

// Add records a problem. Empty strings are ignored.
func (v *ValidationErrors) Add(format string, args ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	if msg == "" {
		return
	}
	v.Problems = append(v.Problems, msg)
}

// Empty reports whether no problems were recorded.
func (v *ValidationErrors) Empty() bool {
	return v == nil || len(v.Problems) == 0
}

func (v *ValidationErrors) Error() string {
	subject := strings.TrimSpace(v.Subject)
	if subject == "" {
		subject = "record"
	}
	return fmt.Sprintf("%s: %s", subject, strings.Join(v.Problems, "; "))
}

// Unwrap ties the aggregate to the data-integrity marker.
func (v *ValidationErrors) Unwrap() error {
	return ErrDataIntegrity
}

// Err returns nil when nothing was recorded so callers can return it directly.
func (v *ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return v
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
