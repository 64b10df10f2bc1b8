package router

import "errors"

// The three terminal failure modes of a route call. Anything a backend
// reports is either recovered via fallback or folded into one of these.
var (
	// ErrAllBackendsFailed means every backend the strategy allowed was
	// attempted and failed.
	ErrAllBackendsFailed = errors.New("router: all backends failed")

	// ErrCancelled means the caller's context was cancelled or its deadline
	// expired while the route call was in flight.
	ErrCancelled = errors.New("router: cancelled")

	// ErrInvalidConfiguration means the descriptor, threshold or strategy
	// was rejected before any backend was invoked.
	ErrInvalidConfiguration = errors.New("router: invalid configuration")
)
