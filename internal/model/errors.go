package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// ErrPermissionDenied means the acting user is neither the owner of the
	// resource nor an admin. Surfaced to the caller, never retried.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMalformedSyncEvent means a vector store response carried a missing
	// or unparseable id. Not retryable without an upstream fix.
	ErrMalformedSyncEvent = errors.New("malformed sync event")
)

// TransientError wraps database or network failures during persistence.
// Reconcile and SetState are idempotent, so the whole call is safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient store error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Sentinel errors keep their identity so
// callers can still distinguish NotFound from a flaky connection.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
