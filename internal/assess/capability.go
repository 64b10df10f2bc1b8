package assess

import (
	"runtime"
	"time"

	"github.com/centsible/infera/internal/backend"
	"github.com/centsible/infera/internal/monitor"
)

// CapabilityEstimator reports how capable the current device/runtime is of
// handling local inference, in [0,1]. Implementations must be side-effect
// free and cheap enough to call on every route.
type CapabilityEstimator interface {
	Estimate() float64
}

// StaticCapability is a fixed capability signal. It exists because some
// deployments have no runtime signal worth reading; it never reacts to load
// or failures, which makes Auto's branch effectively configuration.
type StaticCapability float64

func (s StaticCapability) Estimate() float64 { return clamp01(float64(s)) }

// CPUCapability derives a coarse score from the machine's logical CPU count.
// Slowly varying at best, but distinguishes watch-class from
// workstation-class hardware without any telemetry.
type CPUCapability struct{}

func (CPUCapability) Estimate() float64 {
	switch n := runtime.NumCPU(); {
	case n >= 8:
		return 0.9
	case n >= 4:
		return 0.7
	case n >= 2:
		return 0.5
	default:
		return 0.3
	}
}

// MonitorCapability scores the device from the local backend's recent track
// record: success rate weighted against average latency. Fresh processes
// with no samples report a neutral 0.7 so Auto starts on the cheap path.
type MonitorCapability struct {
	Monitor *monitor.Monitor

	// SlowLatency is the latency at which the latency factor bottoms out.
	// Defaults to 10s when zero.
	SlowLatency time.Duration
}

func (m *MonitorCapability) Estimate() float64 {
	snap := m.Monitor.Snapshot(backend.KindLocal)
	if snap.SampleCount == 0 {
		return 0.7
	}

	slow := m.SlowLatency
	if slow <= 0 {
		slow = 10 * time.Second
	}

	latencyFactor := 1.0 - float64(snap.AverageLatency)/float64(slow)
	if latencyFactor < 0 {
		latencyFactor = 0
	}

	return clamp01(0.7*snap.SuccessRate + 0.3*latencyFactor)
}
