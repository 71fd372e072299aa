// Package backoff runs an operation under a bounded exponential retry policy.
// Only errors marked retryable in the domain are retried.
package backoff

import (
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

// ErrStopped is returned when the stop channel closes before a retry starts.
var ErrStopped = errors.New("retry stopped")

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Initial is the delay before the second attempt; later delays double
	// (with jitter) up to Max.
	Initial time.Duration
	Max     time.Duration

	// Jitter spreads retries of concurrent tasks apart.
	Jitter bool

	Clock clock.Clock
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		Initial:     time.Second,
		Max:         30 * time.Second,
		Jitter:      true,
		Clock:       clock.WallClock,
	}
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err ended a retry loop by running out of attempts.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// RetryFunc is told about each failed attempt that will be retried, with the
// delay before the next one.
type RetryFunc func(err error, attempt int, delay time.Duration)

// Call runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or stop is closed. fn receives the 1-based attempt number.
//
// A closed stop channel never interrupts a running attempt; it only prevents
// the next one. In that case the result wraps both ErrStopped and the last
// attempt's error.
func (p Policy) Call(stop <-chan struct{}, fn func(attempt int) error, onRetry RetryFunc) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}

	var (
		attempt int
		lastErr error
	)
	expBackoff := retry.ExpBackoff(p.Initial, p.Max, 2, p.Jitter)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++
			lastErr = fn(attempt)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !domain.IsRetryable(err)
		},
		BackoffFunc: func(delay time.Duration, i int) time.Duration {
			next := expBackoff(delay, i)
			// A server-provided Retry-After takes precedence when longer.
			if after, ok := domain.GetRetryAfter(lastErr); ok && after > next {
				next = after
			}
			if next > p.Max {
				next = p.Max
			}
			if onRetry != nil {
				onRetry(lastErr, attempt, next)
			}
			return next
		},
		Attempts: p.MaxAttempts,
		Delay:    p.Initial,
		MaxDelay: p.Max,
		Clock:    p.Clock,
		Stop:     stop,
	})
	if err == nil {
		return nil
	}

	switch {
	case !domain.IsRetryable(lastErr):
		return lastErr
	case retry.IsAttemptsExceeded(err):
		return &ExhaustedError{Attempts: attempt, Err: lastErr}
	case isClosed(stop):
		return fmt.Errorf("%w after attempt %d: %w", ErrStopped, attempt, lastErr)
	default:
		return err
	}
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
