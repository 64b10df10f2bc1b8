package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures. The router only needs the class to
// decide whether to fall back; the wrapped cause is kept for logs.
type ErrorKind string

const (
	ErrorUnavailable      ErrorKind = "unavailable"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorNetwork          ErrorKind = "network_error"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorProcessing       ErrorKind = "processing_failed"
)

// Error is the failure type every backend returns. It wraps the underlying
// cause so callers can still errors.Is/As into driver errors.
type Error struct {
	Kind    ErrorKind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("backend %s: %s", e.Backend, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified backend error.
func NewError(kind ErrorKind, backendName string, cause error) *Error {
	return &Error{Kind: kind, Backend: backendName, Err: cause}
}

// KindOf extracts the error kind from err, classifying context errors on the
// way. Unclassified errors count as processing failures.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}
	return ErrorProcessing
}
