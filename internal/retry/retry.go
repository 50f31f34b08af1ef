// Package retry provides bounded retries with exponential backoff for
// chat-surface API calls, honoring explicit retry-after hints when the
// upstream provides them.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Factor is the multiplier for exponential backoff.
	Factor float64
	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool
}

// DefaultConfig returns settings tuned for chat API edits.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// retryAfterError lets an operation dictate its own backoff, typically
// from a rate-limit response header.
type retryAfterError struct {
	after time.Duration
	err   error
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// After wraps err with an explicit retry-after delay.
func After(err error, after time.Duration) error {
	return &retryAfterError{after: after, err: err}
}

// permanentError marks an error as not worth retrying.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Result contains the outcome of a retried operation.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// Do executes op with retries per config.
func Do(ctx context.Context, config Config, op func() error) Result {
	start := time.Now()
	result := Result{}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 250 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 15 * time.Second
	}
	if config.Factor <= 0 {
		config.Factor = 2.0
	}

	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		}

		err := op()
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}
		result.Err = err

		if IsPermanent(err) || attempt == config.MaxAttempts {
			result.Duration = time.Since(start)
			return result
		}

		wait := delay
		var ra *retryAfterError
		if errors.As(err, &ra) && ra.after > 0 {
			wait = ra.after
		} else if config.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if wait > config.MaxDelay {
			wait = config.MaxDelay
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(wait):
		}

		delay = time.Duration(math.Min(
			float64(delay)*config.Factor,
			float64(config.MaxDelay),
		))
	}

	result.Duration = time.Since(start)
	return result
}
