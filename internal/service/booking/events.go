package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
)

type EventType string

const (
	EventBooked    EventType = "appointment.booked.v1"
	EventConfirmed EventType = "appointment.confirmed.v1"
	EventCancelled EventType = "appointment.cancelled.v1"
)

var eventNamespace = uuid.MustParse("6f0d1c58-3f55-4b8e-9a53-1f6c3e0b7a21")

// Event describes a committed appointment change. An appointment reaches each status at
// most once, so ID is derived from the appointment and the event type and repeats when
// the same change is published twice.
type Event struct {
	ID          uuid.UUID
	Type        EventType
	OccurredAt  time.Time
	Appointment domain.Appointment
}

func NewEvent(typ EventType, appt domain.Appointment, at time.Time) Event {
	return Event{
		ID:          uuid.NewSHA1(eventNamespace, []byte(appt.ID.String()+":"+string(typ))),
		Type:        typ,
		OccurredAt:  at.UTC(),
		Appointment: appt,
	}
}

// Notifier delivers committed appointment changes. Implementations should honour ctx;
// the service bounds each call and never fails a booking because of a returned error.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

func eventFor(status domain.Status) (EventType, bool) {
	switch status {
	case domain.StatusConfirmed:
		return EventConfirmed, true
	case domain.StatusCancelled:
		return EventCancelled, true
	default:
		return "", false
	}
}
