package booking

import (
	"context"
	"errors"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

var (
	ErrSlotTaken           = errors.New("the requested time is no longer available")
	ErrStaffAbsent         = errors.New("the staff member is absent at the requested time")
	ErrStaffInactive       = errors.New("the staff member is not taking bookings")
	ErrOutsideWorkingHours = errors.New("the requested time is outside the staff member's working hours")
	ErrNoServicesGiven     = errors.New("at least one service is required")
	ErrStaffNotFound       = errors.New("staff member not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrTenantNotFound      = errors.New("tenant not found")
)

// ValidationError reports malformed or out-of-policy input.
type ValidationError struct {
	msg string
	err error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

func invalid(err error) error {
	return &ValidationError{msg: err.Error(), err: err}
}

// ConflictError reports that the request was well formed but the schedule or the
// appointment's state does not allow it. The message is safe to show to end users.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func conflict(err error) error {
	return &ConflictError{Err: err}
}

// TransientError reports an infrastructure condition, such as lock contention, that a
// caller may retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "temporarily unavailable: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

type Class int

const (
	ClassNone Class = iota
	ClassConflict
	ClassInput
	ClassNotFound
	ClassTransient
	ClassInternal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassConflict:
		return "conflict"
	case ClassInput:
		return "input"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Classify buckets err for callers that map failures onto their own status codes.
func Classify(err error) Class {
	var (
		conflictErr  *ConflictError
		validErr     *ValidationError
		transientErr *TransientError
	)
	switch {
	case err == nil:
		return ClassNone
	case errors.As(err, &conflictErr):
		return ClassConflict
	case errors.As(err, &validErr):
		return ClassInput
	case errors.As(err, &transientErr),
		errors.Is(err, store.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case errors.Is(err, ErrStaffNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrTenantNotFound),
		errors.Is(err, store.ErrNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// translate maps store and domain failures raised inside a transaction onto the
// service's error types. notFound replaces store.ErrNotFound.
func translate(err error, notFound error) error {
	var (
		conflictErr *ConflictError
		validErr    *ValidationError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflictErr), errors.As(err, &validErr):
		return err
	case errors.Is(err, store.ErrConflict):
		return conflict(ErrSlotTaken)
	case errors.Is(err, store.ErrIdempotencyConflict):
		return conflict(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return conflict(err)
	case errors.Is(err, domain.ErrInvalidPayment):
		return invalid(err)
	case errors.Is(err, store.ErrLockTimeout):
		return &TransientError{Err: err}
	case errors.Is(err, store.ErrNotFound) && notFound != nil:
		return notFound
	default:
		return err
	}
}
