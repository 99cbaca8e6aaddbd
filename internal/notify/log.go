package notify

import (
	"context"
	"log/slog"

	"salonbook/backend/internal/service/booking"
)

// LogNotifier writes every event to the structured log. It is the fallback when no
// broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(slog.String("component", "notify.log"))}
}

func (n *LogNotifier) Notify(ctx context.Context, ev booking.Event) error {
	p := NewPayload(ev)
	names := make([]string, 0, len(p.Services))
	for _, s := range p.Services {
		names = append(names, s.Name)
	}
	n.log.InfoContext(ctx, "appointment event",
		slog.String("event_id", p.EventID),
		slog.String("event_type", p.EventType),
		slog.String("appointment_id", p.AppointmentID),
		slog.String("staff_id", p.StaffID),
		slog.String("client_name", p.ClientName),
		slog.Time("start_time", p.StartTime),
		slog.Any("services", names),
		slog.Int64("total_price", p.TotalPrice),
		slog.Int64("amount_paid", p.AmountPaid),
		slog.Int64("pending_balance", p.PendingBalance),
	)
	return nil
}
