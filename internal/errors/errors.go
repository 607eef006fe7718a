// Package errors provides structured error handling for DocMind.
//
// Every failure surfaced by the engine carries a Kind from a closed
// taxonomy so that callers dispatch on error kinds instead of matching
// message strings or catching broad error chains.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for caller dispatch.
type Kind int

const (
	// KindInternal is an unexpected failure with no better classification.
	KindInternal Kind = iota

	// KindConstraintViolation indicates rejected input data (bad file type,
	// negative size, empty id). Not retryable.
	KindConstraintViolation

	// KindLocked indicates write contention on the metadata store. The
	// caller may retry; the engine never retries internally.
	KindLocked

	// KindTimeout indicates a deadline expired. Persisted state is
	// unchanged from before the call. The caller may retry.
	KindTimeout

	// KindStoreCorrupted indicates structural damage to the metadata
	// store. Fatal; never auto-repaired.
	KindStoreCorrupted

	// KindIndexCorrupted indicates structural damage to the full-text
	// index. Recovered by rebuilding from the metadata store.
	KindIndexCorrupted

	// KindCacheCorrupted indicates the embedding cache failed to load.
	// The cache starts empty; search degrades until a rebuild.
	KindCacheCorrupted

	// KindDegraded indicates an optional subsystem is unavailable and a
	// feature narrowed rather than failed.
	KindDegraded

	// KindNotFound indicates a lookup miss. Lookups usually encode this
	// as a nil result instead; the kind exists for operations that must
	// fail on absence (e.g. restore from a missing backup).
	KindNotFound

	// KindUnavailable indicates a closed or not-yet-opened component.
	KindUnavailable
)

// String returns the kind's stable identifier.
func (k Kind) String() string {
	switch k {
	case KindConstraintViolation:
		return "constraint_violation"
	case KindLocked:
		return "locked"
	case KindTimeout:
		return "timeout"
	case KindStoreCorrupted:
		return "store_corrupted"
	case KindIndexCorrupted:
		return "index_corrupted"
	case KindCacheCorrupted:
		return "cache_corrupted"
	case KindDegraded:
		return "degraded"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the structured error type for the engine.
type Error struct {
	// Kind is the taxonomy entry callers dispatch on.
	Kind Kind

	// Op is the failing operation, e.g. "store.Save".
	Op string

	// Message is the human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s: [%s] %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, enabling errors.Is against sentinel kinds.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// E creates a new Error.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error around an existing cause.
// Returns nil when err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Cause: err}
}

// KindOf extracts the kind from an error chain.
// Plain errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether the caller may retry the operation.
// Only contention and deadline failures are retryable; corruption and
// constraint violations are not.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindLocked, KindTimeout:
		return true
	default:
		return false
	}
}

// IsCorruption reports whether the error indicates structural damage
// requiring a rebuild from the source of truth.
func IsCorruption(err error) bool {
	switch KindOf(err) {
	case KindStoreCorrupted, KindIndexCorrupted, KindCacheCorrupted:
		return true
	default:
		return false
	}
}
