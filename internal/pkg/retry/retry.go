// Package retry wraps outbound calls that may fail transiently with an
// exponential backoff loop.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
)

// Config controls a single Do call. A zero Config behaves like DefaultConfig;
// otherwise only unset InitialDelay and ShouldRetry fall back to defaults.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry; it doubles every retry.
	InitialDelay time.Duration
	// ShouldRetry classifies an error as retryable. Defaults to IsTransient.
	ShouldRetry func(error) bool
	// OnRetry observes every scheduled retry before the delay starts.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// Result is the outcome of Do. Attempts counts the initial call as 1.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// DefaultConfig returns the configuration used when a caller passes a zero Config.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		ShouldRetry:  IsTransient,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or runs out
// of retries. The delay after failed attempt n is InitialDelay * 2^(n-1).
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) Result[T] {
	cfg = cfg.withDefaults()

	var res Result[T]
	for {
		res.Attempts++
		value, err := op(ctx)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		if res.Attempts > cfg.MaxRetries || !cfg.ShouldRetry(err) {
			return res
		}

		delay := Backoff(cfg.InitialDelay, res.Attempts)
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, res.Attempts, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}
}

// Backoff returns initial * 2^(attempt-1). There is no upper bound.
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return initial << uint(attempt-1)
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialDelay == 0 && c.ShouldRetry == nil {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}
