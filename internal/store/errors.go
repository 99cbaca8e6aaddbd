package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	// ErrLockTimeout is returned when a row lock could not be acquired in time or the
	// transaction lost a serialization race. Callers may retry.
	ErrLockTimeout = errors.New("lock timeout")
)
