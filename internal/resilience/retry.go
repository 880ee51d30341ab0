package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig tunes [Do]. Zero values select the defaults.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt. Default: 1s.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between attempts. Default: 10s.
	MaxDelay time.Duration

	// Base is the exponential growth factor. Default: 2.
	Base float64

	// Jitter scales each delay by a random factor in [0.5, 1.5) when true.
	// Default: true (set via DefaultRetry or a non-nil config loader).
	Jitter bool

	// OnRetry, when set, is invoked once per failed attempt that will be
	// re-tried, before the backoff sleep. attempt is 1-indexed.
	OnRetry func(name string, attempt int)
}

// DefaultRetry returns the standard retry policy for outbound calls.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Base:         2,
		Jitter:       true,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Base <= 1 {
		c.Base = 2
	}
	return c
}

// retryableError marks its wrapped error as safe to retry.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. [Do] only re-attempts operations whose
// error is marked this way; everything else fails fast.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err (or any error it wraps) was marked with
// [Retryable].
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Do runs op up to cfg.MaxAttempts times, sleeping an exponentially growing,
// optionally jittered delay between attempts. Only errors marked with
// [Retryable] are re-attempted; a non-retryable error or context cancellation
// ends the loop immediately. The last error is returned on exhaustion.
func Do(ctx context.Context, cfg RetryConfig, name string, op func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(name, attempt)
		}
		delay := backoffDelay(cfg, attempt)
		slog.Warn("retry.attempt",
			"operation", name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("resilience: %s: attempts exhausted: %w", name, lastErr)
}

// backoffDelay computes the sleep after failed attempt k (1-indexed):
// min(maxDelay, initial * base^(k-1)), scaled by jitter in [0.5, 1.5).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Base, float64(attempt-1)))
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	if cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}
