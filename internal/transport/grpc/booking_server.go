package grpc

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/booking"
	"salonbook/backend/internal/store"
)

const dateLayout = "2006-01-02"

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	GetFreeSlots(ctx context.Context, in booking.FreeSlotsInput) ([]time.Time, error)
	GetTenantFreeSlots(ctx context.Context, tenantID uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error)
	GetCatalog(ctx context.Context, tenantID uuid.UUID) (booking.Catalog, error)
	BookSlot(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	ConfirmAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (domain.Appointment, error)
	RecordPayment(ctx context.Context, appointmentID uuid.UUID, amount int64, reference string) (domain.Appointment, error)
	ListStaffAppointments(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
	ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
}

var _ BookingServiceServer = (*BookingServer)(nil)

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) GetFreeSlots(ctx context.Context, req *GetFreeSlotsRequest) (*GetFreeSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetFreeSlots"))

	if req == nil {
		return nil, nilRequest(log)
	}
	if (req.StaffID == "") == (req.TenantID == "") {
		log.Warn("invalid request", slog.String("reason", "ambiguous_owner"))
		return nil, status.Error(codes.InvalidArgument, "exactly one of staff_id and tenant_id is required")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_date"), slog.String("date", req.Date))
		return nil, status.Error(codes.InvalidArgument, "date must be formatted as YYYY-MM-DD")
	}
	serviceIDs, err := parseIDs(req.ServiceIDs)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "service_ids"))
		return nil, status.Error(codes.InvalidArgument, "service_ids must be UUIDs")
	}

	if req.TenantID != "" {
		return s.tenantFreeSlots(ctx, log, req.TenantID, date, serviceIDs)
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
		return nil, status.Error(codes.InvalidArgument, "staff_id must be a UUID")
	}

	slots, err := s.svc.GetFreeSlots(ctx, booking.FreeSlotsInput{
		StaffID:    staffID,
		Date:       date,
		ServiceIDs: serviceIDs,
	})
	if err != nil {
		return nil, s.statusError(log, "free slots lookup failed", err, slog.String("staff_id", req.StaffID))
	}

	log.Debug(
		"free slots listed",
		slog.String("staff_id", req.StaffID),
		slog.String("date", req.Date),
		slog.Int("count", len(slots)),
	)
	return &GetFreeSlotsResponse{Slots: slots}, nil
}

func (s *BookingServer) tenantFreeSlots(ctx context.Context, log *slog.Logger, rawTenantID string, date time.Time, serviceIDs []uuid.UUID) (*GetFreeSlotsResponse, error) {
	tenantID, err := uuid.Parse(rawTenantID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "tenant_id"))
		return nil, status.Error(codes.InvalidArgument, "tenant_id must be a UUID")
	}

	byStaff, err := s.svc.GetTenantFreeSlots(ctx, tenantID, date, serviceIDs)
	if err != nil {
		return nil, s.statusError(log, "tenant free slots lookup failed", err, slog.String("tenant_id", rawTenantID))
	}

	out := make([]StaffSlots, 0, len(byStaff))
	for id, slots := range byStaff {
		out = append(out, StaffSlots{StaffID: id.String(), Slots: slots})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID < out[j].StaffID })

	log.Debug(
		"tenant free slots listed",
		slog.String("tenant_id", rawTenantID),
		slog.String("date", date.Format(dateLayout)),
		slog.Int("staff", len(out)),
	)
	return &GetFreeSlotsResponse{Staff: out}, nil
}

func (s *BookingServer) GetCatalog(ctx context.Context, req *GetCatalogRequest) (*GetCatalogResponse, error) {
	log := s.log.With(slog.String("rpc", "GetCatalog"))

	if req == nil {
		return nil, nilRequest(log)
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "tenant_id"))
		return nil, status.Error(codes.InvalidArgument, "tenant_id must be a UUID")
	}

	cat, err := s.svc.GetCatalog(ctx, tenantID)
	if err != nil {
		return nil, s.statusError(log, "catalog lookup failed", err, slog.String("tenant_id", req.TenantID))
	}

	resp := &GetCatalogResponse{
		Staff:    make([]StaffMember, 0, len(cat.Staff)),
		Services: make([]Service, 0, len(cat.Services)),
	}
	for _, m := range cat.Staff {
		resp.Staff = append(resp.Staff, StaffMember{ID: m.ID.String(), DisplayName: m.DisplayName})
	}
	for _, svc := range cat.Services {
		resp.Services = append(resp.Services, Service{
			ID:              svc.ID.String(),
			Name:            svc.Name,
			DurationMinutes: svc.DurationSeconds / 60,
			Price:           svc.Price,
		})
	}
	return resp, nil
}

func (s *BookingServer) BookSlot(ctx context.Context, req *BookSlotRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
		return nil, status.Error(codes.InvalidArgument, "staff_id must be a UUID")
	}
	if req.StartTime.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_start_time"), slog.String("staff_id", req.StaffID))
		return nil, status.Error(codes.InvalidArgument, "start_time is required")
	}
	serviceIDs, err := parseIDs(req.ServiceIDs)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "service_ids"))
		return nil, status.Error(codes.InvalidArgument, "service_ids must be UUIDs")
	}

	appt, err := s.svc.BookSlot(ctx, booking.BookInput{
		StaffID:        staffID,
		Start:          req.StartTime,
		ServiceIDs:     serviceIDs,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusError(log, "booking failed", err,
			slog.String("staff_id", req.StaffID),
			slog.Time("start_time", req.StartTime),
		)
	}

	log.Info(
		"slot booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("staff_id", appt.StaffID.String()),
		slog.String("status", string(appt.Status)),
		slog.Time("start_time", appt.StartTime),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) GetAppointment(ctx context.Context, req *GetAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	if req == nil {
		return nil, nilRequest(log)
	}
	id, err := parseAppointmentID(log, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.statusError(log, "appointment lookup failed", err, slog.String("appointment_id", id.String()))
	}
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) ConfirmAppointment(ctx context.Context, req *ConfirmAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ConfirmAppointment"))

	if req == nil {
		return nil, nilRequest(log)
	}
	id, err := parseAppointmentID(log, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.ConfirmAppointment(ctx, id)
	if err != nil {
		return nil, s.statusError(log, "appointment confirm failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info("appointment confirmed", slog.String("appointment_id", id.String()))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	if req == nil {
		return nil, nilRequest(log)
	}
	id, err := parseAppointmentID(log, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.CancelAppointment(ctx, id, req.Reason)
	if err != nil {
		return nil, s.statusError(log, "appointment cancel failed", err, slog.String("appointment_id", id.String()))
	}

	log.Info("appointment cancelled", slog.String("appointment_id", id.String()))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) RecordPayment(ctx context.Context, req *RecordPaymentRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "RecordPayment"))

	if req == nil {
		return nil, nilRequest(log)
	}
	id, err := parseAppointmentID(log, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.svc.RecordPayment(ctx, id, req.Amount, req.Reference)
	if err != nil {
		return nil, s.statusError(log, "payment record failed", err,
			slog.String("appointment_id", id.String()),
			slog.Int64("amount", req.Amount),
		)
	}

	log.Info(
		"payment recorded",
		slog.String("appointment_id", id.String()),
		slog.Int64("amount", req.Amount),
		slog.String("status", string(appt.Status)),
	)
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_window"))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}
	if (req.StaffID == "") == (req.TenantID == "") {
		log.Warn("invalid request", slog.String("reason", "ambiguous_owner"))
		return nil, status.Error(codes.InvalidArgument, "exactly one of staff_id and tenant_id is required")
	}

	var (
		appts []domain.Appointment
		owner slog.Attr
		err   error
	)
	if req.StaffID != "" {
		owner = slog.String("staff_id", req.StaffID)
		staffID, perr := uuid.Parse(req.StaffID)
		if perr != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "staff_id"))
			return nil, status.Error(codes.InvalidArgument, "staff_id must be a UUID")
		}
		appts, err = s.svc.ListStaffAppointments(ctx, staffID, req.WindowStart, req.WindowEnd)
	} else {
		owner = slog.String("tenant_id", req.TenantID)
		tenantID, perr := uuid.Parse(req.TenantID)
		if perr != nil {
			log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "tenant_id"))
			return nil, status.Error(codes.InvalidArgument, "tenant_id must be a UUID")
		}
		appts, err = s.svc.ListTenantAppointments(ctx, tenantID, req.WindowStart, req.WindowEnd)
	}
	if err != nil {
		return nil, s.statusError(log, "appointments list failed", err, owner)
	}

	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}

	log.Debug(
		"appointments listed",
		owner,
		slog.Int("count", len(out)),
		slog.Time("window_start", req.WindowStart),
		slog.Time("window_end", req.WindowEnd),
	)
	return &ListAppointmentsResponse{Appointments: out}, nil
}

func parseAppointmentID(log *slog.Logger, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"), slog.String("field", "appointment_id"))
		return uuid.Nil, status.Error(codes.InvalidArgument, "appointment_id must be a UUID")
	}
	return id, nil
}

func nilRequest(log *slog.Logger) error {
	log.Warn("invalid request", slog.String("reason", "nil_request"))
	return status.Error(codes.InvalidArgument, "request is required")
}

// statusError logs err at the level its class deserves and converts it to a gRPC status.
func (s *BookingServer) statusError(log *slog.Logger, msg string, err error, attrs ...any) error {
	args := append([]any{slog.Any("err", err)}, attrs...)
	switch booking.Classify(err) {
	case booking.ClassConflict:
		log.Info(msg, args...)
		return status.Error(codes.FailedPrecondition, conflictMessage(err))
	case booking.ClassInput:
		log.Warn("invalid request", args...)
		return status.Error(codes.InvalidArgument, err.Error())
	case booking.ClassNotFound:
		log.Info(msg, args...)
		return status.Error(codes.NotFound, notFoundMessage(err))
	case booking.ClassTransient:
		log.Warn(msg, args...)
		return status.Error(codes.Unavailable, "The schedule is busy right now. Try again in a moment.")
	default:
		log.Error(msg, args...)
		return status.Error(codes.Internal, "internal error")
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		return "That time was just taken. Pick a different slot."
	case errors.Is(err, booking.ErrStaffAbsent):
		return "The stylist is away at that time. Pick a different slot."
	case errors.Is(err, store.ErrIdempotencyConflict):
		return "This request key was already used for a different appointment. Try again."
	case errors.Is(err, domain.ErrInvalidTransition):
		return "The appointment can no longer be changed that way."
	default:
		return err.Error()
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, booking.ErrStaffNotFound):
		return "staff member not found"
	case errors.Is(err, booking.ErrServiceNotFound):
		return "service not found"
	case errors.Is(err, booking.ErrTenantNotFound):
		return "tenant not found"
	default:
		return "appointment not found"
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toAppointment(a domain.Appointment) *Appointment {
	services := make([]AppointmentService, 0, len(a.Services))
	for _, svc := range a.Services {
		services = append(services, AppointmentService{
			ServiceID:       svc.ServiceID.String(),
			Name:            svc.Name,
			DurationMinutes: svc.DurationSeconds / 60,
			Price:           svc.Price,
		})
	}
	return &Appointment{
		ID:               a.ID.String(),
		TenantID:         a.TenantID.String(),
		StaffID:          a.StaffID.String(),
		ClientName:       a.ClientName,
		ClientPhone:      a.ClientPhone,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Status:           string(a.Status),
		PaymentMethod:    string(a.PaymentMethod),
		Services:         services,
		TotalPrice:       a.TotalPrice,
		DepositDue:       a.DepositDue,
		AmountPaid:       a.AmountPaid,
		PendingBalance:   a.Balance(),
		PaymentReference: a.PaymentReference,
		ExpiresAt:        a.ExpiresAt,
		CancelledAt:      a.CancelledAt,
		CancelReason:     a.CancelReason,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}
