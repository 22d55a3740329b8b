package core

import (
	"fmt"

	apperrors "basket_swap/pkg/errors"
)

// ConfigurationError prevents a run from starting
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	if e.Err == nil {
		return apperrors.ErrNoSignerConfigured
	}
	return e.Err
}

// LegError is a leg-scoped failure. It is recorded in the leg's SwapResult and never
// returned past the orchestrator.
type LegError struct {
	Kind ErrorKind
	Leg  int
	Err  error
}

func (e *LegError) Error() string {
	return fmt.Sprintf("leg %d %s: %v", e.Leg, e.Kind, e.Err)
}

// Unwrap exposes the kind sentinel alongside the cause
func (e *LegError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *LegError) sentinel() error {
	switch e.Kind {
	case ErrorKindQuote:
		return apperrors.ErrQuoteFailed
	case ErrorKindBuild:
		return apperrors.ErrBuildFailed
	default:
		return apperrors.ErrExecutionFailed
	}
}

// BatchAbortError aborts a batched run before anything was submitted
type BatchAbortError struct {
	Leg    int // BatchLegIndex when no single leg is at fault
	Reason string
	Err    error
}

func (e *BatchAbortError) Error() string {
	if e.Leg == BatchLegIndex {
		return fmt.Sprintf("batch aborted: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("batch aborted at leg %d: %s: %v", e.Leg, e.Reason, e.Err)
}

func (e *BatchAbortError) Unwrap() []error {
	return []error{apperrors.ErrBatchAborted, e.Err}
}
