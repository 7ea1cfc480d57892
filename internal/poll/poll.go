// Package poll provides the single polling primitive used by every long
// remote wait in the ingest pipeline.
//
// Until checks a condition immediately and then once per interval until it
// reports done, returns an error, exhausts its attempt budget, passes its
// deadline, or its context is cancelled. The ticker is stopped on every
// return path, so cancelling a package context tears down any wait still
// running for it.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accession/internal/services"
)

// ErrExhausted reports that a poll ran out of attempts or passed its deadline
// before the condition held. It matches services.ErrTimeout.
var ErrExhausted = fmt.Errorf("%w: poll exhausted", services.ErrTimeout)

// Options bounds a polling loop. At least one of MaxAttempts or Deadline
// should be set; a loop with neither only ends on success, error, or
// cancellation.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Deadline    time.Duration
	// OnAttempt, when set, is called before each check with the 1-based attempt.
	OnAttempt func(attempt int)
}

// Check reports whether the awaited condition holds. A non-nil error ends the
// loop immediately.
type Check func(ctx context.Context) (bool, error)

// Until runs check until it reports true. It returns nil on success, the
// check's error, ctx.Err() when the caller cancels, or an error wrapping
// ErrExhausted when the attempt budget or deadline runs out.
func Until(ctx context.Context, opts Options, check Check) error {
	if check == nil {
		return errors.New("poll: nil check")
	}
	if opts.Interval <= 0 {
		return errors.New("poll: interval must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var deadline <-chan time.Time
	if opts.Deadline > 0 {
		timer := time.NewTimer(opts.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt)
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts", ErrExhausted, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrExhausted, opts.Deadline)
		case <-ticker.C:
		}
	}
}
