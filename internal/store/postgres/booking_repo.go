package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const (
	noOverlapConstraint   = "appointments_no_overlap"
	appointmentPrimaryKey = "appointments_pkey"
)

type BookingRepo struct {
	db          *bun.DB
	lockTimeout time.Duration
}

// NewBookingRepo returns a repository whose staff transactions give up waiting for the
// staff row lock after lockTimeout. A zero timeout waits indefinitely.
func NewBookingRepo(db *bun.DB, lockTimeout time.Duration) *BookingRepo {
	return &BookingRepo{db: db, lockTimeout: lockTimeout}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *BookingRepo) GetTenant(ctx context.Context, tenantID uuid.UUID) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.NewSelect().
		Model(&t).
		Where("id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Tenant{}, mapError(err)
	}
	return t, nil
}

func (r *BookingRepo) GetStaff(ctx context.Context, staffID uuid.UUID) (domain.StaffMember, error) {
	return selectStaff(ctx, r.db, staffID, false)
}

func (r *BookingRepo) ListActiveStaff(ctx context.Context, tenantID uuid.UUID) ([]domain.StaffMember, error) {
	var rows []domain.StaffMember
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Shifts", orderByWeekday).
		Where("tenant_id = ?", tenantID).
		Where("active").
		OrderExpr("display_name ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *BookingRepo) ListTenantServices(ctx context.Context, tenantID uuid.UUID) ([]domain.Service, error) {
	var rows []domain.Service
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *BookingRepo) ListServices(ctx context.Context, tenantID uuid.UUID, serviceIDs []uuid.UUID) ([]domain.Service, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	var rows []domain.Service
	err := r.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		Where("id IN (?)", bun.In(serviceIDs)).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *BookingRepo) ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error) {
	return selectAbsences(ctx, r.db, staffID, window)
}

func (r *BookingRepo) ListStaffAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	return selectAppointments(ctx, r.db, "staff_id", staffID, window, false)
}

func (r *BookingRepo) ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	return selectAppointments(ctx, r.db, "tenant_id", tenantID, window, false)
}

func (r *BookingRepo) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return selectAppointment(ctx, r.db, appointmentID, false)
}

func (r *BookingRepo) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, staff domain.StaffMember, tx store.BookingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.setLockTimeout(ctx, tx); err != nil {
			return err
		}
		staff, err := selectStaff(ctx, tx, staffID, true)
		if err != nil {
			return err
		}
		return fn(ctx, staff, bookingTx{tx: tx})
	})
	return mapError(err)
}

func (r *BookingRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := r.setLockTimeout(ctx, tx); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
	return mapError(err)
}

func (r *BookingRepo) setLockTimeout(ctx context.Context, tx bun.Tx) error {
	if r.lockTimeout <= 0 {
		return nil
	}
	_, err := tx.NewRaw(fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())).Exec(ctx)
	return err
}

func (t bookingTx) ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error) {
	return selectAbsences(ctx, t.tx, staffID, window)
}

func (t bookingTx) ListBlockingAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	return selectAppointments(ctx, t.tx, "staff_id", staffID, window, true)
}

func (t bookingTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return selectAppointment(ctx, t.tx, appointmentID, false)
}

func (t bookingTx) GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return selectAppointment(ctx, t.tx, appointmentID, true)
}

func (t bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}

	if len(appt.Services) > 0 {
		services := make([]domain.AppointmentService, len(appt.Services))
		for i, s := range appt.Services {
			s.AppointmentID = m.ID
			s.Position = i
			services[i] = s
		}
		if _, err := t.tx.NewInsert().Model(&services).Exec(ctx); err != nil {
			return domain.Appointment{}, mapError(err)
		}
		m.Services = services
	}
	return m, nil
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	res, err := t.tx.NewUpdate().
		Model(&appt).
		Column("status", "amount_paid", "payment_reference", "expires_at", "cancelled_at", "cancel_reason", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t bookingTx) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Relation("Services", orderByPosition).
		Where("status = ?", domain.StatusPending).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		OrderExpr("expires_at ASC").
		Limit(limit).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func selectStaff(ctx context.Context, db bun.IDB, staffID uuid.UUID, forUpdate bool) (domain.StaffMember, error) {
	var m domain.StaffMember
	q := db.NewSelect().
		Model(&m).
		Relation("Shifts", orderByWeekday).
		Where("id = ?", staffID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return domain.StaffMember{}, mapError(err)
	}
	return m, nil
}

func selectAbsences(ctx context.Context, db bun.IDB, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error) {
	var rows []domain.Absence
	err := db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func selectAppointments(ctx context.Context, db bun.IDB, ownerColumn string, ownerID uuid.UUID, window domain.Interval, blockingOnly bool) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Relation("Services", orderByPosition).
		Where("? = ?", bun.Ident(ownerColumn), ownerID).
		Where("start_time < ?", window.End).
		Where("end_time > ?", window.Start)
	if blockingOnly {
		q = q.Where("status IN (?)", bun.In([]domain.Status{domain.StatusPending, domain.StatusConfirmed}))
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func selectAppointment(ctx context.Context, db bun.IDB, appointmentID uuid.UUID, forUpdate bool) (domain.Appointment, error) {
	var m domain.Appointment
	q := db.NewSelect().
		Model(&m).
		Relation("Services", orderByPosition).
		Where("id = ?", appointmentID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return m, nil
}

func orderByWeekday(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("weekday ASC")
}

func orderByPosition(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("position ASC")
}

// mapError translates driver errors into store sentinels. Errors that are not Postgres
// errors pass through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "55P03", "40001", "40P01":
		return fmt.Errorf("%w: %s", store.ErrLockTimeout, pgErr.Message)
	case "23P01":
		if pgErr.ConstraintName == noOverlapConstraint {
			return store.ErrConflict
		}
	case "23505":
		if pgErr.ConstraintName == appointmentPrimaryKey {
			return store.ErrIdempotencyConflict
		}
	}
	return err
}
