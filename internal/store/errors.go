package store

import "errors"

var (
	// ErrConflict reports a write rejected by a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrNotFound reports an unknown appointment id or recurrence group.
	ErrNotFound = errors.New("not found")
	// ErrIdempotencyConflict reports an idempotency key reused with a different payload.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
