package backend

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/centsible/infera/internal/task"
)

// Limited wraps a backend that only supports a bounded number of in-flight
// invocations (e.g. a single on-device model session). Callers queue on the
// semaphore; waiting respects ctx cancellation. The router itself imposes no
// concurrency cap, so backends that need one opt in through this wrapper.
type Limited[T any] struct {
	inner Backend[T]
	sem   *semaphore.Weighted
}

// NewLimited wraps inner with a cap of maxInFlight concurrent invocations.
func NewLimited[T any](inner Backend[T], maxInFlight int64) *Limited[T] {
	return &Limited[T]{
		inner: inner,
		sem:   semaphore.NewWeighted(maxInFlight),
	}
}

func (l *Limited[T]) Invoke(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.inner.Invoke(ctx, t)
}

func (l *Limited[T]) Kind() Kind   { return l.inner.Kind() }
func (l *Limited[T]) Name() string { return l.inner.Name() }

// Throttled wraps a backend with a client-side request rate limit, typically
// a remote API with a requests-per-minute quota.
type Throttled[T any] struct {
	inner   Backend[T]
	limiter *rate.Limiter
}

// NewThrottled wraps inner, allowing rps requests per second with the given
// burst.
func NewThrottled[T any](inner Backend[T], rps float64, burst int) *Throttled[T] {
	return &Throttled[T]{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (t *Throttled[T]) Invoke(ctx context.Context, d *task.Descriptor) (*Result[T], error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Invoke(ctx, d)
}

func (t *Throttled[T]) Kind() Kind   { return t.inner.Kind() }
func (t *Throttled[T]) Name() string { return t.inner.Name() }
