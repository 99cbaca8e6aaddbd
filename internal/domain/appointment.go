package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

const ExpiredReason = "payment window expired"

var (
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	ErrInvalidPayment    = errors.New("payment amount must be positive")
)

// Blocking reports whether an appointment in this status holds its interval.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCancelled
	default:
		return false
	}
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID               uuid.UUID            `bun:"id,pk,type:uuid"`
	TenantID         uuid.UUID            `bun:"tenant_id,notnull,type:uuid"`
	StaffID          uuid.UUID            `bun:"staff_id,notnull,type:uuid"`
	ClientName       string               `bun:"client_name,notnull"`
	ClientPhone      string               `bun:"client_phone,notnull"`
	StartTime        time.Time            `bun:"start_time,notnull"`
	EndTime          time.Time            `bun:"end_time,notnull"`
	Status           Status               `bun:"status,notnull"`
	PaymentMethod    PaymentMethod        `bun:"payment_method,notnull"`
	TotalPrice       int64                `bun:"total_price,notnull"`
	DepositDue       int64                `bun:"deposit_due,notnull"`
	AmountPaid       int64                `bun:"amount_paid,notnull"`
	PaymentReference string               `bun:"payment_reference"`
	ExpiresAt        *time.Time           `bun:"expires_at"`
	CancelledAt      *time.Time           `bun:"cancelled_at"`
	CancelReason     string               `bun:"cancel_reason"`
	Services         []AppointmentService `bun:"rel:has-many,join:id=appointment_id"`
	CreatedAt        time.Time            `bun:"created_at,notnull"`
	UpdatedAt        time.Time            `bun:"updated_at,notnull"`
}

// AppointmentService is the snapshot of a booked service taken at booking time.
type AppointmentService struct {
	bun.BaseModel `bun:"table:appointment_services"`

	AppointmentID   uuid.UUID `bun:"appointment_id,pk,type:uuid"`
	Position        int       `bun:"position,pk"`
	ServiceID       uuid.UUID `bun:"service_id,notnull,type:uuid"`
	Name            string    `bun:"name,notnull"`
	DurationSeconds int       `bun:"duration_seconds,notnull"`
	Price           int64     `bun:"price,notnull"`
}

func SnapshotServices(services []Service) []AppointmentService {
	out := make([]AppointmentService, 0, len(services))
	for i, s := range services {
		out = append(out, AppointmentService{
			Position:        i,
			ServiceID:       s.ID,
			Name:            s.Name,
			DurationSeconds: s.DurationSeconds,
			Price:           s.Price,
		})
	}
	return out
}

func TotalDuration(services []Service) time.Duration {
	var d time.Duration
	for _, s := range services {
		d += s.Duration()
	}
	return d
}

func TotalPrice(services []Service) int64 {
	var p int64
	for _, s := range services {
		p += s.Price
	}
	return p
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func (a Appointment) Balance() int64 {
	if a.AmountPaid >= a.TotalPrice {
		return 0
	}
	return a.TotalPrice - a.AmountPaid
}

func (a *Appointment) transition(next Status, now time.Time) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Confirm moves a Pending appointment to Confirmed. Confirming an already confirmed
// appointment is a no-op.
func (a *Appointment) Confirm(now time.Time) error {
	if a.Status == StatusConfirmed {
		return nil
	}
	if err := a.transition(StatusConfirmed, now); err != nil {
		return err
	}
	a.ExpiresAt = nil
	return nil
}

// Cancel is terminal. Cancelling an already cancelled appointment is a no-op.
func (a *Appointment) Cancel(now time.Time, reason string) error {
	if a.Status == StatusCancelled {
		return nil
	}
	if err := a.transition(StatusCancelled, now); err != nil {
		return err
	}
	t := now
	a.CancelledAt = &t
	a.CancelReason = reason
	a.ExpiresAt = nil
	return nil
}

// Expire cancels a Pending appointment whose payment window has closed.
func (a *Appointment) Expire(now time.Time) bool {
	if a.Status != StatusPending || a.ExpiresAt == nil || now.Before(*a.ExpiresAt) {
		return false
	}
	return a.Cancel(now, ExpiredReason) == nil
}

// RecordPayment adds a settled amount. A Pending appointment whose paid amount covers
// the deposit is confirmed; a Cancelled one keeps its status.
func (a *Appointment) RecordPayment(amount int64, reference string, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidPayment
	}
	a.AmountPaid += amount
	if reference != "" {
		a.PaymentReference = reference
	}
	a.UpdatedAt = now
	if a.Status == StatusPending && a.AmountPaid >= a.DepositDue {
		return a.Confirm(now)
	}
	return nil
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
