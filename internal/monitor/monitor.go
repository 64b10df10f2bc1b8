// Package monitor records per-backend routing telemetry. Recording is
// fire-and-forget: the router's hot path does a bounded, constant-time
// enqueue and a single collector goroutine does the aggregation.
package monitor

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/centsible/infera/internal/backend"
)

const (
	defaultQueueSize  = 1024
	defaultWindowSize = 100
)

// Sample is one completed backend invocation.
type Sample struct {
	TaskID     string
	Backend    backend.Kind
	Succeeded  bool
	Fallback   bool
	Latency    time.Duration
	Confidence float64
	Cost       float64
	Timestamp  time.Time
}

// Snapshot is a point-in-time aggregate for one backend kind.
type Snapshot struct {
	Backend           backend.Kind  `json:"backend"`
	SampleCount       int64         `json:"sample_count"`
	SuccessRate       float64       `json:"success_rate"`
	AverageLatency    time.Duration `json:"average_latency"`
	P95Latency        time.Duration `json:"p95_latency"`
	AverageConfidence float64       `json:"average_confidence"`
	TotalCost         float64       `json:"total_cost"`
	FallbackCount     int64         `json:"fallback_count"`
}

// Sink receives every accepted sample, e.g. for distributed aggregation.
// Sink errors are logged and swallowed; they never reach the router.
type Sink interface {
	Write(s Sample) error
}

// stats is the mutable aggregate for one backend kind. Only the collector
// goroutine writes it; snapshots read under the monitor's RWMutex.
type stats struct {
	total      int64
	failed     int64
	fallbacks  int64
	latencies  []time.Duration
	latencySum time.Duration
	confSum    float64
	costSum    float64
	windowSize int
}

func (s *stats) add(sample Sample) {
	s.total++
	if !sample.Succeeded {
		s.failed++
	}
	if sample.Fallback {
		s.fallbacks++
	}
	if sample.Succeeded {
		s.confSum += sample.Confidence
	}
	s.costSum += sample.Cost

	if len(s.latencies) >= s.windowSize {
		s.latencySum -= s.latencies[0]
		s.latencies = s.latencies[1:]
	}
	s.latencies = append(s.latencies, sample.Latency)
	s.latencySum += sample.Latency
}

// Monitor aggregates samples into per-kind rolling statistics.
type Monitor struct {
	logger *zap.Logger
	sink   Sink

	queue chan Sample
	done  chan struct{}
	wg    sync.WaitGroup

	mu    sync.RWMutex
	kinds map[backend.Kind]*stats

	windowSize int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger. Defaults to zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithSink mirrors every accepted sample into sink.
func WithSink(s Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithQueueSize overrides the enqueue buffer size.
func WithQueueSize(n int) Option {
	return func(m *Monitor) { m.queue = make(chan Sample, n) }
}

// WithWindowSize overrides the latency window length per backend kind.
func WithWindowSize(n int) Option {
	return func(m *Monitor) { m.windowSize = n }
}

// New creates a Monitor and starts its collector goroutine.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		logger:     zap.NewNop(),
		queue:      make(chan Sample, defaultQueueSize),
		done:       make(chan struct{}),
		kinds:      make(map[backend.Kind]*stats),
		windowSize: defaultWindowSize,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.collect()

	return m
}

// Record enqueues a sample. It never blocks: when the queue is full the
// sample is dropped and counted, and routing proceeds unaffected.
func (m *Monitor) Record(s Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	select {
	case m.queue <- s:
	case <-m.done:
	default:
		droppedSamples.Inc()
	}
}

// Snapshot returns the current aggregate for one backend kind. A kind with
// no samples yet returns a zero snapshot with SampleCount 0.
func (m *Monitor) Snapshot(kind backend.Kind) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.kinds[kind]
	if !ok || st.total == 0 {
		return Snapshot{Backend: kind}
	}

	snap := Snapshot{
		Backend:       kind,
		SampleCount:   st.total,
		SuccessRate:   float64(st.total-st.failed) / float64(st.total),
		TotalCost:     st.costSum,
		FallbackCount: st.fallbacks,
	}
	if n := len(st.latencies); n > 0 {
		snap.AverageLatency = st.latencySum / time.Duration(n)
		snap.P95Latency = percentile(st.latencies, 0.95)
	}
	if succeeded := st.total - st.failed; succeeded > 0 {
		snap.AverageConfidence = st.confSum / float64(succeeded)
	}
	return snap
}

// Snapshots returns aggregates for every kind seen so far.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.RLock()
	kinds := make([]backend.Kind, 0, len(m.kinds))
	for k := range m.kinds {
		kinds = append(kinds, k)
	}
	m.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(kinds))
	for _, k := range kinds {
		snaps = append(snaps, m.Snapshot(k))
	}
	return snaps
}

// Reset discards all aggregates. Only explicit caller requests reset state;
// nothing expires on its own during the process lifetime.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = make(map[backend.Kind]*stats)
}

// Close stops the collector after draining queued samples.
func (m *Monitor) Close() {
	close(m.done)
	m.wg.Wait()
}

func (m *Monitor) collect() {
	defer m.wg.Done()

	for {
		select {
		case s := <-m.queue:
			m.apply(s)
		case <-m.done:
			// Drain whatever was enqueued before shutdown.
			for {
				select {
				case s := <-m.queue:
					m.apply(s)
				default:
					return
				}
			}
		}
	}
}

func (m *Monitor) apply(s Sample) {
	m.mu.Lock()
	st, ok := m.kinds[s.Backend]
	if !ok {
		st = &stats{windowSize: m.windowSize}
		m.kinds[s.Backend] = st
	}
	st.add(s)
	m.mu.Unlock()

	observeSample(s)

	if m.sink != nil {
		if err := m.sink.Write(s); err != nil {
			m.logger.Debug("telemetry sink write failed",
				zap.String("backend", string(s.Backend)),
				zap.Error(err))
		}
	}
}

func percentile(window []time.Duration, p float64) time.Duration {
	sorted := make([]time.Duration, len(window))
	copy(sorted, window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
