// Package retry runs an operation a fixed number of times with a fixed delay
// between attempts. Used for broker, database and cache connects at startup.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensor-ingest/errs"
)

// NonRetryableError wraps errors that should stop the retry loop immediately
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts int           // Total attempts, at least one
	Delay       time.Duration // Fixed pause between attempts
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is cancelled.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.Delay < 0 {
		return errors.New("retry: Delay cannot be negative")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: failed after %d attempts: %w", errs.ErrMaxRetriesReached, cfg.MaxAttempts, lastErr)
}
