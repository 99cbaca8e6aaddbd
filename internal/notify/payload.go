package notify

import (
	"encoding/json"
	"time"

	"salonbook/backend/internal/service/booking"
)

// Payload is the JSON body published for every appointment event.
type Payload struct {
	EventID        string           `json:"event_id"`
	EventType      string           `json:"event_type"`
	OccurredAt     time.Time        `json:"occurred_at"`
	AppointmentID  string           `json:"appointment_id"`
	TenantID       string           `json:"tenant_id"`
	StaffID        string           `json:"staff_id"`
	ClientName     string           `json:"client_name"`
	ClientPhone    string           `json:"client_phone"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Status         string           `json:"status"`
	PaymentMethod  string           `json:"payment_method"`
	Services       []PayloadService `json:"services"`
	TotalPrice     int64            `json:"total_price"`
	DepositDue     int64            `json:"deposit_due"`
	AmountPaid     int64            `json:"amount_paid"`
	PendingBalance int64            `json:"pending_balance"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
}

type PayloadService struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

func NewPayload(ev booking.Event) Payload {
	a := ev.Appointment
	services := make([]PayloadService, 0, len(a.Services))
	for _, s := range a.Services {
		services = append(services, PayloadService{
			Name:            s.Name,
			DurationMinutes: s.DurationSeconds / 60,
			Price:           s.Price,
		})
	}
	return Payload{
		EventID:        ev.ID.String(),
		EventType:      string(ev.Type),
		OccurredAt:     ev.OccurredAt.UTC(),
		AppointmentID:  a.ID.String(),
		TenantID:       a.TenantID.String(),
		StaffID:        a.StaffID.String(),
		ClientName:     a.ClientName,
		ClientPhone:    a.ClientPhone,
		StartTime:      a.StartTime.UTC(),
		EndTime:        a.EndTime.UTC(),
		Status:         string(a.Status),
		PaymentMethod:  string(a.PaymentMethod),
		Services:       services,
		TotalPrice:     a.TotalPrice,
		DepositDue:     a.DepositDue,
		AmountPaid:     a.AmountPaid,
		PendingBalance: a.Balance(),
		ExpiresAt:      a.ExpiresAt,
		CancelReason:   a.CancelReason,
	}
}

func Encode(ev booking.Event) ([]byte, error) {
	return json.Marshal(NewPayload(ev))
}
