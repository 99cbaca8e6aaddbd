package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

// BookingRepository is the schedule store. Reads outside a transaction may be stale by
// the time a booking is attempted; the locked transaction re-reads everything it checks.
type BookingRepository interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (domain.Tenant, error)
	GetStaff(ctx context.Context, staffID uuid.UUID) (domain.StaffMember, error)
	// ListActiveStaff returns the tenant's active staff members with their shifts,
	// ordered by display name.
	ListActiveStaff(ctx context.Context, tenantID uuid.UUID) ([]domain.StaffMember, error)
	ListTenantServices(ctx context.Context, tenantID uuid.UUID) ([]domain.Service, error)
	ListServices(ctx context.Context, tenantID uuid.UUID, serviceIDs []uuid.UUID) ([]domain.Service, error)
	ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error)
	ListStaffAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error)
	ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, window domain.Interval) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)

	// InStaffTransaction runs fn in a transaction holding the staff member's row lock.
	// Concurrent calls for the same staff member are serialized; a lock wait longer than
	// the configured timeout fails with ErrLockTimeout.
	InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, staff domain.StaffMember, tx BookingTx) error) error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error)
	// ListBlockingAppointments returns the staff member's Pending and Confirmed
	// appointments overlapping window.
	ListBlockingAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appt domain.Appointment) error
	// ListExpiredPending locks up to limit Pending appointments whose payment window
	// closed at or before now, skipping rows locked by other transactions.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Appointment, error)
}
