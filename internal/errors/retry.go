package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential-backoff retry behavior, used by the
// VectorStore adapter's rollback retries and the collection index-ready
// poll.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig is the adapter's default: 3 retries, 1s initial delay
// doubling up to 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn with exponential backoff until it succeeds, the context is
// cancelled, or MaxRetries is exhausted.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			if err := sleepBackoff(ctx, cfg, &delay); err != nil {
				return err
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// RetryWithResult is Retry for functions that also return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			if err := sleepBackoff(ctx, cfg, &delay); err != nil {
				return result, err
			}
			continue
		}
		return result, nil
	}
	var zero T
	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

func sleepBackoff(ctx context.Context, cfg RetryConfig, delay *time.Duration) error {
	wait := *delay
	if cfg.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()*0.5))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	*delay = time.Duration(float64(*delay) * cfg.Multiplier)
	if *delay > cfg.MaxDelay {
		*delay = cfg.MaxDelay
	}
	return nil
}

// PollWithBackoff polls fn until it reports ready, the timeout elapses, or
// the context is cancelled. Used by create_hybrid_collection's index-ready
// wait: initial 500ms, cap 5s, 60s overall timeout.
func PollWithBackoff(ctx context.Context, initial, cap_ time.Duration, timeout time.Duration, fn func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	delay := initial
	for {
		ready, err := fn()
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for readiness", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cap_ {
			delay = cap_
		}
	}
}
