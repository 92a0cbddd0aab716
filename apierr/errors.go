// Package apierr defines the sentinel errors shared between the domain
// packages and the router. Domain code wraps one of these with fmt.Errorf's
// %w verb; the router unwraps with errors.Is to pick an HTTP status.
package apierr

import "errors"

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the request failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrPrecondition means the entity exists but is not in a state the
	// requested operation allows (e.g. cancelling an already-completed job).
	ErrPrecondition = errors.New("precondition failed")
	// ErrConflict means the operation would violate a uniqueness invariant
	// (e.g. a second default model for the same type).
	ErrConflict = errors.New("conflict")
	// ErrResourceMissing means a referenced on-disk or registered resource
	// (model, input file) is absent.
	ErrResourceMissing = errors.New("resource missing")
	// ErrEngine wraps a failure surfaced by an inference engine adapter.
	ErrEngine = errors.New("engine error")
	// ErrCancelled means the operation was aborted by a cancellation request.
	ErrCancelled = errors.New("cancelled")
	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)
