// Package router implements the local/remote inference routing policy:
// confidence-gated fallback, concurrent racing and adaptive strategy
// selection over a pluggable pair of backends.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/centsible/infera/internal/assess"
	"github.com/centsible/infera/internal/backend"
	"github.com/centsible/infera/internal/monitor"
	"github.com/centsible/infera/internal/task"
)

// DefaultConfidenceThreshold is the inclusive confidence gate used by
// NativeFirst when none is configured.
const DefaultConfidenceThreshold = 0.85

// Auto delegates to NativeFirst only when the device looks capable and the
// task looks cheap; anything else pays for a hybrid race.
const (
	autoCapabilityFloor   = 0.7
	autoComplexityCeiling = 0.6
)

// Assessor scores a task's complexity in [0,1].
type Assessor func(*task.Descriptor) float64

// Router routes tasks between one local and one remote backend. It holds no
// global state: construct one per backend pair and inject it where needed.
type Router[T any] struct {
	local  backend.Backend[T]
	remote backend.Backend[T]

	monitor    *monitor.Monitor
	logger     *zap.Logger
	threshold  float64
	complexity Assessor
	capability assess.CapabilityEstimator
}

// Option configures a Router.
type Option[T any] func(*Router[T])

// WithMonitor records every backend invocation into m.
func WithMonitor[T any](m *monitor.Monitor) Option[T] {
	return func(r *Router[T]) { r.monitor = m }
}

// WithLogger sets the router's logger. Defaults to zap.NewNop.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(r *Router[T]) { r.logger = l }
}

// WithConfidenceThreshold overrides the NativeFirst confidence gate. The
// gate is inclusive: a local result at exactly the threshold is accepted.
func WithConfidenceThreshold[T any](threshold float64) Option[T] {
	return func(r *Router[T]) { r.threshold = threshold }
}

// WithAssessor overrides the complexity heuristic used by Auto.
func WithAssessor[T any](a Assessor) Option[T] {
	return func(r *Router[T]) { r.complexity = a }
}

// WithCapabilityEstimator overrides the device capability signal used by
// Auto.
func WithCapabilityEstimator[T any](e assess.CapabilityEstimator) Option[T] {
	return func(r *Router[T]) { r.capability = e }
}

// New creates a Router over the given backend pair.
func New[T any](local, remote backend.Backend[T], opts ...Option[T]) *Router[T] {
	r := &Router[T]{
		local:      local,
		remote:     remote,
		logger:     zap.NewNop(),
		threshold:  DefaultConfidenceThreshold,
		complexity: assess.Complexity,
		capability: assess.CPUCapability{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route executes t under the given strategy and returns the single result
// the caller should use. It fails only with ErrAllBackendsFailed,
// ErrCancelled or ErrInvalidConfiguration.
func (r *Router[T]) Route(ctx context.Context, t *task.Descriptor, strategy Strategy) (*Result[T], error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task descriptor", ErrInvalidConfiguration)
	}
	// task.New rejects non-positive explicit deadlines; this guards
	// descriptors built by hand.
	if t.Deadline < 0 {
		return nil, fmt.Errorf("%w: negative deadline", ErrInvalidConfiguration)
	}
	if r.threshold < 0 || r.threshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold %.2f out of [0,1]",
			ErrInvalidConfiguration, r.threshold)
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	if t.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Deadline)
		defer cancel()
	}

	switch strategy {
	case NativeOnly:
		return r.nativeOnly(ctx, t)
	case NativeFirst:
		return r.nativeFirst(ctx, t)
	case RemoteFirst:
		return r.remoteFirst(ctx, t)
	case Hybrid:
		return r.hybrid(ctx, t)
	default: // Auto, the only strategy left after Validate
		return r.auto(ctx, t)
	}
}

func (r *Router[T]) nativeOnly(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	res, err := r.invoke(ctx, r.local, t, false)
	if err != nil {
		if cerr := r.cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: local: %v", ErrAllBackendsFailed, err)
	}
	return fromBackend(res, backend.KindLocal, false), nil
}

func (r *Router[T]) nativeFirst(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	res, err := r.invoke(ctx, r.local, t, false)
	if err == nil && res.Confidence >= r.threshold {
		return fromBackend(res, backend.KindLocal, false), nil
	}

	// Either the local backend failed outright or its confidence missed
	// the gate. A low-confidence result is discarded entirely, never
	// returned as a degraded answer.
	if err == nil {
		r.logger.Debug("local confidence below threshold, falling back",
			zap.String("task_id", t.ID),
			zap.Float64("confidence", res.Confidence),
			zap.Float64("threshold", r.threshold))
	} else if cerr := r.cancelled(ctx); cerr != nil {
		return nil, cerr
	}

	remote, rerr := r.invoke(ctx, r.remote, t, true)
	if rerr != nil {
		if cerr := r.cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		if err != nil {
			return nil, fmt.Errorf("%w: local: %v; remote: %v", ErrAllBackendsFailed, err, rerr)
		}
		return nil, fmt.Errorf("%w: local confidence %.2f below %.2f; remote: %v",
			ErrAllBackendsFailed, res.Confidence, r.threshold, rerr)
	}
	return fromBackend(remote, backend.KindRemote, true), nil
}

func (r *Router[T]) remoteFirst(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	// Remote results are treated as authoritative: no confidence gate,
	// only outright failure triggers the fallback.
	res, err := r.invoke(ctx, r.remote, t, false)
	if err == nil {
		return fromBackend(res, backend.KindRemote, false), nil
	}
	if cerr := r.cancelled(ctx); cerr != nil {
		return nil, cerr
	}

	local, lerr := r.invoke(ctx, r.local, t, true)
	if lerr != nil {
		if cerr := r.cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: remote: %v; local: %v", ErrAllBackendsFailed, err, lerr)
	}
	return fromBackend(local, backend.KindLocal, true), nil
}

// hybrid runs both backends to completion and keeps the better answer. The
// loser is deliberately not cancelled: the comparison needs both results and
// the compute already committed is not wasted.
func (r *Router[T]) hybrid(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	type outcome struct {
		res *backend.Result[T]
		err error
	}

	var local, remote outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		local.res, local.err = r.invoke(ctx, r.local, t, false)
	}()
	go func() {
		defer wg.Done()
		remote.res, remote.err = r.invoke(ctx, r.remote, t, false)
	}()
	wg.Wait()

	switch {
	case local.err == nil && remote.err == nil:
		// Ties favor local: it has no marginal cost.
		if remote.res.Confidence > local.res.Confidence {
			return fromBackend(remote.res, backend.KindRemote, true), nil
		}
		return fromBackend(local.res, backend.KindLocal, false), nil

	case local.err == nil:
		return fromBackend(local.res, backend.KindLocal, false), nil

	case remote.err == nil:
		return fromBackend(remote.res, backend.KindRemote, true), nil

	default:
		if cerr := r.cancelled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("%w: local: %v; remote: %v",
			ErrAllBackendsFailed, local.err, remote.err)
	}
}

// auto is a one-shot binary branch recomputed fresh on every call, not a
// continuous scheduler.
func (r *Router[T]) auto(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	complexity := r.complexity(t)
	capability := r.capability.Estimate()

	cheap := capability >= autoCapabilityFloor && complexity < autoComplexityCeiling
	r.logger.Debug("auto strategy decision",
		zap.String("task_id", t.ID),
		zap.Float64("complexity", complexity),
		zap.Float64("capability", capability),
		zap.Bool("native_first", cheap))

	if cheap {
		return r.nativeFirst(ctx, t)
	}
	return r.hybrid(ctx, t)
}

// invoke runs one backend invocation and records exactly one telemetry
// sample for it, success or not.
func (r *Router[T]) invoke(ctx context.Context, b backend.Backend[T], t *task.Descriptor, fallback bool) (*backend.Result[T], error) {
	start := time.Now()
	res, err := b.Invoke(ctx, t)
	latency := time.Since(start)

	sample := monitor.Sample{
		TaskID:    t.ID,
		Backend:   b.Kind(),
		Succeeded: err == nil,
		Fallback:  fallback,
		Latency:   latency,
	}
	if err == nil {
		if res.ProcessingTime == 0 {
			res.ProcessingTime = latency
		}
		sample.Confidence = res.Confidence
		sample.Cost = res.Cost
	}
	if r.monitor != nil {
		r.monitor.Record(sample)
	}

	if err != nil {
		r.logger.Debug("backend invocation failed",
			zap.String("task_id", t.ID),
			zap.String("backend", b.Name()),
			zap.String("kind", string(b.Kind())),
			zap.String("error_kind", string(backend.KindOf(err))),
			zap.Duration("latency", latency),
			zap.Error(err))
	}
	return res, err
}

func (r *Router[T]) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}
