package router

import (
	"time"

	"github.com/centsible/infera/internal/backend"
)

// Result is the only value a route call hands back to the caller.
type Result[T any] struct {
	// Data is the winning backend's payload.
	Data T

	// Source names the backend kind that produced Data.
	Source backend.Kind

	// Confidence is the winning backend's self-reported confidence.
	Confidence float64

	// ProcessingTime is how long the winning invocation took.
	ProcessingTime time.Duration

	// FallbackUsed is true iff the local backend was attempted and not
	// ultimately selected, or failed outright.
	FallbackUsed bool
}

func fromBackend[T any](res *backend.Result[T], source backend.Kind, fallback bool) *Result[T] {
	return &Result[T]{
		Data:           res.Data,
		Source:         source,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime,
		FallbackUsed:   fallback,
	}
}
