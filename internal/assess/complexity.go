// Package assess provides the pure scoring heuristics the router's Auto
// strategy branches on: task complexity and device capability, both in [0,1].
package assess

import (
	"time"

	"github.com/centsible/infera/internal/task"
)

// Bucket thresholds for the payload-size heuristic. Sized for the workloads
// this router fronts: short audio clips and prompt-sized text on the small
// end, multi-minute recordings on the large end.
const (
	smallPayloadBytes = 64 << 10  // 64 KiB
	largePayloadBytes = 512 << 10 // 512 KiB

	shortDuration = 30 * time.Second
	longDuration  = 2 * time.Minute
)

// Complexity estimates how hard a task is, in [0,1]. Deterministic, pure,
// and total: a descriptor with no usable signal scores a mid 0.5 rather than
// 0, since under-estimating complexity can wrongly select a
// resource-constrained path. An explicit hint on the descriptor wins.
func Complexity(t *task.Descriptor) float64 {
	if t.ComplexityHint != nil {
		return clamp01(*t.ComplexityHint)
	}

	var score float64

	switch size := len(t.Payload); {
	case size == 0:
		// No payload signal at all. Assume mid complexity instead of
		// scoring the task as trivially cheap.
		score += 0.5
	case size > largePayloadBytes:
		score += 0.4
	case size > smallPayloadBytes:
		score += 0.2
	}

	switch d := t.EstimatedDuration; {
	case d > longDuration:
		score += 0.4
	case d > shortDuration:
		score += 0.2
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
