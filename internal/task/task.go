// Package task defines the unit of work handed to the inference router.
package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidDeadline is returned when a descriptor is built with a zero or
// negative deadline. It is the construction-time face of the router's
// invalid-configuration taxonomy: a descriptor that fails here would be
// rejected by Route, so callers map it to the same status they give
// router.ErrInvalidConfiguration.
var ErrInvalidDeadline = errors.New("task: deadline must be positive")

// Descriptor describes one unit of inference work. It is immutable once
// created and discarded after the request completes.
type Descriptor struct {
	// ID correlates log lines and telemetry samples for one request.
	ID string

	// Payload is the opaque input handed to the backends.
	Payload []byte

	// EstimatedDuration is the caller's guess at how long the work itself
	// takes (e.g. audio length for transcription). Zero means unknown.
	EstimatedDuration time.Duration

	// ComplexityHint, when set, overrides the heuristic complexity score.
	ComplexityHint *float64

	// Deadline bounds the whole route call. Zero means no deadline beyond
	// the caller's context.
	Deadline time.Duration

	deadlineSet bool
}

// Option configures a Descriptor at construction time.
type Option func(*Descriptor)

// WithDeadline bounds the route call to d. Must be positive.
func WithDeadline(d time.Duration) Option {
	return func(t *Descriptor) {
		t.Deadline = d
		t.deadlineSet = true
	}
}

// WithEstimatedDuration records the caller's estimate of the work duration.
func WithEstimatedDuration(d time.Duration) Option {
	return func(t *Descriptor) { t.EstimatedDuration = d }
}

// WithComplexityHint pins the complexity score instead of the heuristic.
func WithComplexityHint(c float64) Option {
	return func(t *Descriptor) { t.ComplexityHint = &c }
}

// New builds a Descriptor for the given payload. A deadline supplied via
// WithDeadline must be positive.
func New(payload []byte, opts ...Option) (*Descriptor, error) {
	t := &Descriptor{
		ID:      uuid.NewString(),
		Payload: payload,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.deadlineSet && t.Deadline <= 0 {
		return nil, ErrInvalidDeadline
	}
	return t, nil
}
