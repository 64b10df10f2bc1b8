package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/centsible/infera/internal/task"
)

// ErrCircuitOpen is wrapped in an unavailable Error when the breaker rejects
// an invocation without calling the inner backend.
var ErrCircuitOpen = errors.New("circuit open")

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Breaker trips after a run of consecutive failures and short-circuits
// invocations with an unavailable error until the cooldown passes. A tripped
// local backend lets fallback strategies reach the remote side immediately
// instead of paying a doomed invocation first.
type Breaker[T any] struct {
	inner     Backend[T]
	threshold int
	cooldown  time.Duration

	mu          sync.Mutex
	failures    int
	open        bool
	lastFailure time.Time
}

// NewBreaker wraps inner, opening the circuit after threshold consecutive
// failures for the given cooldown. Non-positive arguments fall back to
// defaults.
func NewBreaker[T any](inner Backend[T], threshold int, cooldown time.Duration) *Breaker[T] {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &Breaker[T]{inner: inner, threshold: threshold, cooldown: cooldown}
}

func (b *Breaker[T]) Invoke(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	if b.tripped() {
		return nil, NewError(ErrorUnavailable, b.inner.Name(), ErrCircuitOpen)
	}
	res, err := b.inner.Invoke(ctx, t)
	b.record(err)
	return res, err
}

func (b *Breaker[T]) Kind() Kind   { return b.inner.Kind() }
func (b *Breaker[T]) Name() string { return b.inner.Name() }

// State reports whether the circuit is open and the consecutive failure count.
func (b *Breaker[T]) State() (open bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.failures
}

// Reset closes the circuit and clears the failure count.
func (b *Breaker[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.failures = 0
}

func (b *Breaker[T]) tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if time.Since(b.lastFailure) > b.cooldown {
		b.open = false
		b.failures = 0
		return false
	}
	return true
}

func (b *Breaker[T]) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		b.open = false
		return
	}
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.threshold {
		b.open = true
	}
}
