package backend

import (
	"context"
	"time"

	"github.com/centsible/infera/internal/task"
)

// Kind identifies which side of the local/remote split a backend sits on.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Result is what a backend produces for a single task. Confidence is the
// backend's self-reported estimate of correctness in [0,1]; a backend that
// cannot produce a meaningful confidence must report 0, never omit it.
type Result[T any] struct {
	Data           T
	Confidence     float64
	ProcessingTime time.Duration
	Cost           float64
}

// Backend performs the actual inference for a task. Implementations are
// black boxes to the router: on-device models, cloud APIs, anything that can
// turn a task into a typed result with a confidence score.
type Backend[T any] interface {
	// Invoke processes the task. It must honor ctx cancellation and return
	// a *Error (or an error wrapping one) on failure.
	Invoke(ctx context.Context, t *task.Descriptor) (*Result[T], error)

	// Kind reports whether this backend is the local or remote side.
	Kind() Kind

	// Name identifies the backend in logs and telemetry.
	Name() string
}

// Func adapts a closure into a Backend.
type Func[T any] struct {
	kind Kind
	name string
	fn   func(ctx context.Context, t *task.Descriptor) (*Result[T], error)
}

// NewFunc wraps fn as a Backend of the given kind.
func NewFunc[T any](kind Kind, name string, fn func(ctx context.Context, t *task.Descriptor) (*Result[T], error)) *Func[T] {
	return &Func[T]{kind: kind, name: name, fn: fn}
}

func (f *Func[T]) Invoke(ctx context.Context, t *task.Descriptor) (*Result[T], error) {
	return f.fn(ctx, t)
}

func (f *Func[T]) Kind() Kind { return f.kind }

func (f *Func[T]) Name() string { return f.name }
