package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/infera/internal/assess"
	"github.com/centsible/infera/internal/backend"
	"github.com/centsible/infera/internal/monitor"
	"github.com/centsible/infera/internal/task"
)

// stubBackend is a configurable fake that counts its invocations.
type stubBackend struct {
	kind       backend.Kind
	confidence float64
	err        error
	delay      time.Duration
	calls      atomic.Int32
}

func (s *stubBackend) Invoke(ctx context.Context, t *task.Descriptor) (*backend.Result[string], error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, backend.NewError(backend.ErrorTimeout, s.Name(), ctx.Err())
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Result[string]{
		Data:       string(s.kind) + "-answer",
		Confidence: s.confidence,
	}, nil
}

func (s *stubBackend) Kind() backend.Kind { return s.kind }
func (s *stubBackend) Name() string       { return "stub-" + string(s.kind) }

func succeeding(kind backend.Kind, confidence float64) *stubBackend {
	return &stubBackend{kind: kind, confidence: confidence}
}

func failing(kind backend.Kind, errKind backend.ErrorKind) *stubBackend {
	return &stubBackend{kind: kind, err: backend.NewError(errKind, "stub-"+string(kind), nil)}
}

// captureSink collects every telemetry sample the monitor accepts.
type captureSink struct {
	mu      sync.Mutex
	samples []monitor.Sample
}

func (c *captureSink) Write(s monitor.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
	return nil
}

func (c *captureSink) byBackend(kind backend.Kind) []monitor.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []monitor.Sample
	for _, s := range c.samples {
		if s.Backend == kind {
			out = append(out, s)
		}
	}
	return out
}

func newTask(t *testing.T, opts ...task.Option) *task.Descriptor {
	t.Helper()
	d, err := task.New([]byte("how much did I spend on coffee"), opts...)
	require.NoError(t, err)
	return d
}

func TestRoute_NativeOnly(t *testing.T) {
	t.Run("success returns local result", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.4)
		remote := succeeding(backend.KindRemote, 0.99)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), NativeOnly)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.False(t, res.FallbackUsed)
		// NativeOnly has no confidence gate and never touches remote.
		assert.Equal(t, int32(0), remote.calls.Load())
	})

	t.Run("failure surfaces AllBackendsFailed without fallback", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorUnavailable)
		remote := succeeding(backend.KindRemote, 0.99)
		r := New[string](local, remote)

		_, err := r.Route(context.Background(), newTask(t), NativeOnly)
		require.ErrorIs(t, err, ErrAllBackendsFailed)
		assert.Equal(t, int32(0), remote.calls.Load())
	})
}

func TestRoute_NativeFirst(t *testing.T) {
	t.Run("accepts confidence exactly at threshold", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.85)
		remote := succeeding(backend.KindRemote, 0.99)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.False(t, res.FallbackUsed)
		assert.Equal(t, int32(0), remote.calls.Load())
	})

	t.Run("low confidence falls back and discards local result", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.6)
		remote := succeeding(backend.KindRemote, 0.95)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.Equal(t, 0.95, res.Confidence)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, "remote-answer", res.Data)
	})

	t.Run("local failure invokes remote exactly once", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorProcessing)
		remote := succeeding(backend.KindRemote, 0.9)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, int32(1), local.calls.Load())
		assert.Equal(t, int32(1), remote.calls.Load())
	})

	t.Run("both failing surfaces AllBackendsFailed", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorUnavailable)
		remote := failing(backend.KindRemote, backend.ErrorNetwork)
		r := New[string](local, remote)

		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.ErrorIs(t, err, ErrAllBackendsFailed)
	})

	t.Run("low-confidence local plus remote failure surfaces AllBackendsFailed", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.3)
		remote := failing(backend.KindRemote, backend.ErrorNetwork)
		r := New[string](local, remote)

		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.ErrorIs(t, err, ErrAllBackendsFailed)
	})

	t.Run("custom threshold is honored", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.7)
		remote := succeeding(backend.KindRemote, 0.99)
		r := New[string](local, remote, WithConfidenceThreshold[string](0.7))

		res, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.Equal(t, int32(0), remote.calls.Load())
	})
}

func TestRoute_RemoteFirst(t *testing.T) {
	t.Run("remote success has no confidence gate", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.99)
		remote := succeeding(backend.KindRemote, 0.1)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), RemoteFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.Equal(t, 0.1, res.Confidence)
		assert.False(t, res.FallbackUsed)
		assert.Equal(t, int32(0), local.calls.Load())
	})

	t.Run("remote failure falls back to local", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.4)
		remote := failing(backend.KindRemote, backend.ErrorNetwork)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), RemoteFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.True(t, res.FallbackUsed)
	})

	t.Run("both failing surfaces AllBackendsFailed", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorUnavailable)
		remote := failing(backend.KindRemote, backend.ErrorTimeout)
		r := New[string](local, remote)

		_, err := r.Route(context.Background(), newTask(t), RemoteFirst)
		require.ErrorIs(t, err, ErrAllBackendsFailed)
	})
}

func TestRoute_Hybrid(t *testing.T) {
	t.Run("higher confidence wins", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.6)
		remote := succeeding(backend.KindRemote, 0.9)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), Hybrid)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, int32(1), local.calls.Load())
		assert.Equal(t, int32(1), remote.calls.Load())
	})

	t.Run("ties favor local deterministically", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.75)
		remote := succeeding(backend.KindRemote, 0.75)
		r := New[string](local, remote)

		for i := 0; i < 10; i++ {
			res, err := r.Route(context.Background(), newTask(t), Hybrid)
			require.NoError(t, err)
			assert.Equal(t, backend.KindLocal, res.Source)
			assert.False(t, res.FallbackUsed)
		}
	})

	t.Run("local failure returns remote with fallback flag", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorUnavailable)
		remote := succeeding(backend.KindRemote, 0.0)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), Hybrid)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.True(t, res.FallbackUsed)
	})

	t.Run("remote failure returns local", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.2)
		remote := failing(backend.KindRemote, backend.ErrorNetwork)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), Hybrid)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.False(t, res.FallbackUsed)
	})

	t.Run("both failing yields AllBackendsFailed and no result", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorProcessing)
		remote := failing(backend.KindRemote, backend.ErrorProcessing)
		r := New[string](local, remote)

		res, err := r.Route(context.Background(), newTask(t), Hybrid)
		require.ErrorIs(t, err, ErrAllBackendsFailed)
		assert.Nil(t, res)
	})

	t.Run("waits for the slower backend", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.5)
		remote := succeeding(backend.KindRemote, 0.9)
		remote.delay = 50 * time.Millisecond
		r := New[string](local, remote)

		start := time.Now()
		res, err := r.Route(context.Background(), newTask(t), Hybrid)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})
}

func TestRoute_Auto(t *testing.T) {
	t.Run("capable device and cheap task matches NativeFirst", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.9)
		remote := succeeding(backend.KindRemote, 0.99)
		r := New[string](local, remote,
			WithCapabilityEstimator[string](assess.StaticCapability(0.8)),
			WithAssessor[string](func(*task.Descriptor) float64 { return 0.5 }))

		res, err := r.Route(context.Background(), newTask(t), Auto)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.False(t, res.FallbackUsed)
		// NativeFirst path: remote never starts.
		assert.Equal(t, int32(0), remote.calls.Load())
	})

	t.Run("complex task delegates to hybrid", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.5)
		remote := succeeding(backend.KindRemote, 0.9)
		r := New[string](local, remote,
			WithCapabilityEstimator[string](assess.StaticCapability(0.9)),
			WithAssessor[string](func(*task.Descriptor) float64 { return 0.8 }))

		res, err := r.Route(context.Background(), newTask(t), Auto)
		require.NoError(t, err)
		assert.Equal(t, backend.KindRemote, res.Source)
		assert.Equal(t, int32(1), local.calls.Load())
	})

	t.Run("weak device delegates to hybrid", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.95)
		remote := succeeding(backend.KindRemote, 0.5)
		r := New[string](local, remote,
			WithCapabilityEstimator[string](assess.StaticCapability(0.3)),
			WithAssessor[string](func(*task.Descriptor) float64 { return 0.1 }))

		res, err := r.Route(context.Background(), newTask(t), Auto)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.Equal(t, int32(1), remote.calls.Load())
	})

	t.Run("confident local on capable device skips remote entirely", func(t *testing.T) {
		// complexity=0.3, capability=0.9, local confidence=0.9.
		local := succeeding(backend.KindLocal, 0.9)
		remote := succeeding(backend.KindRemote, 0.99)
		sink := &captureSink{}
		mon := monitor.New(monitor.WithSink(sink))
		r := New[string](local, remote,
			WithMonitor[string](mon),
			WithCapabilityEstimator[string](assess.StaticCapability(0.9)),
			WithAssessor[string](func(*task.Descriptor) float64 { return 0.3 }))

		res, err := r.Route(context.Background(), newTask(t), Auto)
		require.NoError(t, err)
		mon.Close()

		assert.Equal(t, backend.KindLocal, res.Source)
		assert.Equal(t, 0.9, res.Confidence)
		assert.False(t, res.FallbackUsed)
		assert.Empty(t, sink.byBackend(backend.KindRemote))
		assert.Len(t, sink.byBackend(backend.KindLocal), 1)
	})
}

func TestRoute_Telemetry(t *testing.T) {
	t.Run("fallback produces two records", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.6)
		remote := succeeding(backend.KindRemote, 0.95)
		sink := &captureSink{}
		mon := monitor.New(monitor.WithSink(sink))
		r := New[string](local, remote, WithMonitor[string](mon))

		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		mon.Close()

		localSamples := sink.byBackend(backend.KindLocal)
		remoteSamples := sink.byBackend(backend.KindRemote)
		require.Len(t, localSamples, 1)
		require.Len(t, remoteSamples, 1)
		assert.True(t, localSamples[0].Succeeded)
		assert.False(t, localSamples[0].Fallback)
		assert.True(t, remoteSamples[0].Fallback)
	})

	t.Run("failed invocations are recorded", func(t *testing.T) {
		local := failing(backend.KindLocal, backend.ErrorUnavailable)
		remote := succeeding(backend.KindRemote, 0.9)
		sink := &captureSink{}
		mon := monitor.New(monitor.WithSink(sink))
		r := New[string](local, remote, WithMonitor[string](mon))

		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		mon.Close()

		localSamples := sink.byBackend(backend.KindLocal)
		require.Len(t, localSamples, 1)
		assert.False(t, localSamples[0].Succeeded)
	})

	t.Run("failing sink never changes the routing result", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.9)
		remote := succeeding(backend.KindRemote, 0.95)
		mon := monitor.New(monitor.WithSink(failingSink{}))
		defer mon.Close()
		r := New[string](local, remote, WithMonitor[string](mon))

		res, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
		assert.Equal(t, backend.KindLocal, res.Source)
		assert.Equal(t, 0.9, res.Confidence)
	})

	t.Run("nil monitor routes fine", func(t *testing.T) {
		r := New[string](succeeding(backend.KindLocal, 0.9), succeeding(backend.KindRemote, 0.9))
		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.NoError(t, err)
	})
}

type failingSink struct{}

func (failingSink) Write(monitor.Sample) error { return errors.New("sink down") }

func TestRoute_Cancellation(t *testing.T) {
	t.Run("cancelled context surfaces ErrCancelled", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.9)
		local.delay = time.Second
		remote := succeeding(backend.KindRemote, 0.9)
		remote.delay = time.Second
		r := New[string](local, remote)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := r.Route(ctx, newTask(t), NativeFirst)
		require.ErrorIs(t, err, ErrCancelled)
	})

	t.Run("task deadline bounds the call", func(t *testing.T) {
		local := succeeding(backend.KindLocal, 0.9)
		local.delay = time.Second
		remote := succeeding(backend.KindRemote, 0.9)
		remote.delay = time.Second
		r := New[string](local, remote)

		d := newTask(t, task.WithDeadline(30*time.Millisecond))
		start := time.Now()
		_, err := r.Route(context.Background(), d, Hybrid)
		require.ErrorIs(t, err, ErrCancelled)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestRoute_InvalidConfiguration(t *testing.T) {
	local := succeeding(backend.KindLocal, 0.9)
	remote := succeeding(backend.KindRemote, 0.9)

	t.Run("nil task", func(t *testing.T) {
		r := New[string](local, remote)
		_, err := r.Route(context.Background(), nil, NativeFirst)
		require.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("negative deadline on a hand-built descriptor", func(t *testing.T) {
		before := local.calls.Load()
		r := New[string](local, remote)
		_, err := r.Route(context.Background(), &task.Descriptor{ID: "t1", Deadline: -time.Second}, NativeFirst)
		require.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.Equal(t, before, local.calls.Load())
	})

	t.Run("unknown strategy", func(t *testing.T) {
		r := New[string](local, remote)
		_, err := r.Route(context.Background(), newTask(t), Strategy("quantum"))
		require.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("out of range threshold fails before any invocation", func(t *testing.T) {
		before := local.calls.Load()
		r := New[string](local, remote, WithConfidenceThreshold[string](1.5))
		_, err := r.Route(context.Background(), newTask(t), NativeFirst)
		require.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.Equal(t, before, local.calls.Load())
	})
}
