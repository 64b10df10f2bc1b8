package backend

import (
	"context"
	"math/rand"
	"time"

	"github.com/centsible/infera/internal/task"
)

// RetryConfig controls the backoff schedule of a Retried backend.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig returns the schedule used when none is supplied:
// three attempts with exponential backoff from one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retried wraps a backend with retry on transient failures. Only network,
// timeout, and unavailable errors are retried; permission and processing
// failures return immediately since repeating them cannot help.
type Retried[T any] struct {
	inner Backend[T]
	cfg   RetryConfig
}

// NewRetried wraps inner with the given schedule. Zero-value fields in cfg
// are filled from DefaultRetryConfig.
func NewRetried[T any](inner Backend[T], cfg RetryConfig) *Retried[T] {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	return &Retried[T]{inner: inner, cfg: cfg}
}

func (r *Retried[T]) Invoke(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	var lastErr error
	delay := r.cfg.InitialDelay

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		res, err := r.inner.Invoke(ctx, t)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !retryable(err) || attempt == r.cfg.MaxAttempts-1 {
			break
		}

		if attempt > 0 {
			delay = time.Duration(float64(delay) * r.cfg.Multiplier)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
		}
		wait := delay
		if r.cfg.Jitter {
			wait += time.Duration(rand.Float64() * float64(delay) * 0.3)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (r *Retried[T]) Kind() Kind   { return r.inner.Kind() }
func (r *Retried[T]) Name() string { return r.inner.Name() }

func retryable(err error) bool {
	switch KindOf(err) {
	case ErrorNetwork, ErrorTimeout, ErrorUnavailable:
		return true
	}
	return false
}
