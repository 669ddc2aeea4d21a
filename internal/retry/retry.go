// Package retry implements bounded retry with exponential backoff.
// Only errors explicitly marked with Retryable are retried; everything
// else stops the loop on the first attempt.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts int           // attempts before giving up; 0 retries forever
	InitialWait time.Duration // backoff before the second attempt
	MaxWait     time.Duration // backoff ceiling
	Multiplier  float64       // growth factor between attempts
	Jitter      float64       // fraction of the wait randomized either way
}

// DefaultConfig suits transient network failures.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// wait returns the backoff to sleep after failed attempt n (1-based).
func (c Config) wait(n int) time.Duration {
	d := float64(c.InitialWait)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if d >= float64(c.MaxWait) {
			d = float64(c.MaxWait)
			break
		}
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// RetryableError marks an error as safe to retry.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }

func (e RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as retryable. Retryable(nil) is nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// IsRetryable reports whether err carries the retryable marker.
func IsRetryable(err error) bool {
	var re RetryableError
	return errors.As(err, &re)
}

// Do runs fn until it succeeds, returns a non-retryable error, the
// attempt budget runs out, or ctx is cancelled while backing off.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return err
		}

		timer := time.NewTimer(cfg.wait(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
