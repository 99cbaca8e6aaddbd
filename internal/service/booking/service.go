package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultSweepBatch    = 100
	defaultNotifyQueue   = 1024
	maxListWindow        = 62 * 24 * time.Hour
	maxIdempotencyKeyLen = 256
)

type Config struct {
	// Location is the business timezone; dates and working hours are read in it.
	Location *time.Location
	SlotStep time.Duration
	// PendingTTL bounds how long an unpaid Pending appointment holds its slot. Zero
	// disables expiry.
	PendingTTL    time.Duration
	NotifyTimeout time.Duration
	// NotifyQueue caps the events waiting for delivery; further events are dropped.
	NotifyQueue int
	SweepBatch  int
}

type Service struct {
	repo     store.BookingRepository
	dispatch *dispatcher
	cfg      Config
	log      *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(repo store.BookingRepository, notifier Notifier, cfg Config, log *slog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = domain.DefaultSlotStep
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultSweepBatch
	}
	if cfg.NotifyQueue <= 0 {
		cfg.NotifyQueue = defaultNotifyQueue
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "service.booking"))

	s := &Service{
		repo:   repo,
		cfg:    cfg,
		log:    log,
		tracer: otel.Tracer("salonbook/service/booking"),
		now:    time.Now,
	}
	if notifier != nil {
		s.dispatch = newDispatcher(notifier, cfg.NotifyTimeout, cfg.NotifyQueue, log)
	}
	return s
}

// Close stops accepting notifications and waits, up to ctx, for queued ones to be
// delivered.
func (s *Service) Close(ctx context.Context) error {
	if s.dispatch == nil {
		return nil
	}
	return s.dispatch.close(ctx)
}

type FreeSlotsInput struct {
	StaffID uuid.UUID
	// Date is read as a civil date; its clock and location are ignored.
	Date       time.Time
	ServiceIDs []uuid.UUID
}

// GetFreeSlots lists the start times on in.Date at which the staff member could take
// every requested service back to back. The result is advisory: BookSlot re-checks
// under the staff lock.
func (s *Service) GetFreeSlots(ctx context.Context, in FreeSlotsInput) ([]time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "booking.GetFreeSlots", trace.WithAttributes(
		attribute.String("staff.id", in.StaffID.String()),
	))
	defer span.End()

	slots, err := s.getFreeSlots(ctx, in)
	recordSpanError(span, err)
	return slots, err
}

func (s *Service) getFreeSlots(ctx context.Context, in FreeSlotsInput) ([]time.Time, error) {
	if in.StaffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	if in.Date.IsZero() {
		return nil, validationError("date is required")
	}
	if len(in.ServiceIDs) == 0 {
		return nil, invalid(ErrNoServicesGiven)
	}

	staff, err := s.repo.GetStaff(ctx, in.StaffID)
	if err != nil {
		return nil, translate(err, ErrStaffNotFound)
	}
	services, err := s.loadServices(ctx, staff.TenantID, in.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if !staff.Active {
		return []time.Time{}, nil
	}
	if err := checkSchedule(staff); err != nil {
		return nil, err
	}
	return s.staffSlots(ctx, staff, s.civilDay(in.Date), domain.TotalDuration(services))
}

// GetTenantFreeSlots lists, per active staff member of the tenant, the start times on
// date at which every requested service fits back to back. Staff members with no free
// start time are left out, and so are members whose schedule fails validation.
func (s *Service) GetTenantFreeSlots(ctx context.Context, tenantID uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "booking.GetTenantFreeSlots", trace.WithAttributes(
		attribute.String("tenant.id", tenantID.String()),
	))
	defer span.End()

	slots, err := s.getTenantFreeSlots(ctx, tenantID, date, serviceIDs)
	recordSpanError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("staff.available", len(slots)))
	}
	return slots, err
}

func (s *Service) getTenantFreeSlots(ctx context.Context, tenantID uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error) {
	if tenantID == uuid.Nil {
		return nil, validationError("tenant_id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	if len(serviceIDs) == 0 {
		return nil, invalid(ErrNoServicesGiven)
	}

	if _, err := s.repo.GetTenant(ctx, tenantID); err != nil {
		return nil, translate(err, ErrTenantNotFound)
	}
	services, err := s.loadServices(ctx, tenantID, serviceIDs)
	if err != nil {
		return nil, err
	}
	staff, err := s.repo.ListActiveStaff(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	day := s.civilDay(date)
	duration := domain.TotalDuration(services)
	out := make(map[uuid.UUID][]time.Time, len(staff))
	for _, m := range staff {
		if !m.Active {
			continue
		}
		if err := checkSchedule(m); err != nil {
			s.log.ErrorContext(ctx, "staff schedule invalid; skipped from availability",
				slog.String("staff_id", m.ID.String()),
				slog.Any("err", err),
			)
			continue
		}
		slots, err := s.staffSlots(ctx, m, day, duration)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			out[m.ID] = slots
		}
	}
	return out, nil
}

// Catalog is what a tenant offers: its active staff and its services.
type Catalog struct {
	Staff    []domain.StaffMember
	Services []domain.Service
}

func (s *Service) GetCatalog(ctx context.Context, tenantID uuid.UUID) (Catalog, error) {
	if tenantID == uuid.Nil {
		return Catalog{}, validationError("tenant_id is required")
	}
	if _, err := s.repo.GetTenant(ctx, tenantID); err != nil {
		return Catalog{}, translate(err, ErrTenantNotFound)
	}
	staff, err := s.repo.ListActiveStaff(ctx, tenantID)
	if err != nil {
		return Catalog{}, err
	}
	services, err := s.repo.ListTenantServices(ctx, tenantID)
	if err != nil {
		return Catalog{}, err
	}
	return Catalog{Staff: staff, Services: services}, nil
}

// civilDay is midnight, in the business location, of date's calendar day. date's own
// clock and location are ignored.
func (s *Service) civilDay(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)
}

func (s *Service) staffSlots(ctx context.Context, staff domain.StaffMember, day time.Time, duration time.Duration) ([]time.Time, error) {
	window := domain.Interval{Start: day, End: day.AddDate(0, 0, 1)}

	appts, err := s.repo.ListStaffAppointments(ctx, staff.ID, window)
	if err != nil {
		return nil, err
	}
	absences, err := s.repo.ListAbsences(ctx, staff.ID, window)
	if err != nil {
		return nil, err
	}

	return domain.ComputeFreeSlots(domain.SlotQuery{
		Schedule:     staff.Schedule(),
		Day:          day,
		Duration:     duration,
		Step:         s.cfg.SlotStep,
		Appointments: appts,
		Absences:     absences,
	}), nil
}

// checkSchedule rejects a stored weekly schedule that breaks the shift rules. It
// surfaces as an internal error: the data is wrong, not the request.
func checkSchedule(staff domain.StaffMember) error {
	if err := staff.Schedule().Validate(); err != nil {
		return fmt.Errorf("staff %s: %w", staff.ID, err)
	}
	return nil
}

type BookInput struct {
	StaffID        uuid.UUID
	Start          time.Time
	ServiceIDs     []uuid.UUID
	ClientName     string
	ClientPhone    string
	PaymentMethod  domain.PaymentMethod
	IdempotencyKey string
}

// BookSlot creates an appointment covering every requested service starting at
// in.Start. All availability checks run while holding the staff member's row lock, so
// two callers can never both book overlapping intervals for the same staff member.
func (s *Service) BookSlot(ctx context.Context, in BookInput) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.BookSlot", trace.WithAttributes(
		attribute.String("staff.id", in.StaffID.String()),
		attribute.String("start", in.Start.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	appt, replay, err := s.bookSlot(ctx, in)
	recordSpanError(span, err)
	if err != nil {
		s.logFailure(ctx, "book slot", err,
			slog.String("staff_id", in.StaffID.String()),
			slog.Time("start", in.Start),
		)
		return domain.Appointment{}, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()), attribute.Bool("replay", replay))
	if replay {
		return appt, nil
	}

	s.log.InfoContext(ctx, "appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("staff_id", appt.StaffID.String()),
		slog.Time("start", appt.StartTime),
		slog.String("status", string(appt.Status)),
	)
	s.notify(ctx, EventBooked, appt)
	return appt, nil
}

func (s *Service) bookSlot(ctx context.Context, in BookInput) (domain.Appointment, bool, error) {
	draft, key, err := s.validateBooking(in)
	if err != nil {
		return domain.Appointment{}, false, err
	}

	staff, err := s.repo.GetStaff(ctx, in.StaffID)
	if err != nil {
		return domain.Appointment{}, false, translate(err, ErrStaffNotFound)
	}
	services, err := s.loadServices(ctx, staff.TenantID, in.ServiceIDs)
	if err != nil {
		return domain.Appointment{}, false, err
	}
	tenant, err := s.repo.GetTenant(ctx, staff.TenantID)
	if err != nil {
		return domain.Appointment{}, false, err
	}

	now := s.now().UTC()
	start := draft.StartTime.In(s.cfg.Location)
	slot := domain.NewInterval(start, domain.TotalDuration(services))

	draft.TenantID = staff.TenantID
	draft.StaffID = staff.ID
	draft.StartTime = slot.Start.UTC()
	draft.EndTime = slot.End.UTC()
	draft.Services = domain.SnapshotServices(services)
	draft.TotalPrice = domain.TotalPrice(services)
	draft.Status = domain.StatusConfirmed
	if deposit := tenant.DepositFor(draft.TotalPrice); deposit > 0 && tenant.RequiresPrepayment(draft.PaymentMethod) {
		draft.Status = domain.StatusPending
		draft.DepositDue = deposit
		if s.cfg.PendingTTL > 0 {
			expires := now.Add(s.cfg.PendingTTL)
			draft.ExpiresAt = &expires
		}
	}
	if key != "" {
		draft.ID = idempotentAppointmentID(staff.TenantID, key)
	}
	draft.CreatedAt = now
	draft.UpdatedAt = now

	var (
		out    domain.Appointment
		replay bool
	)
	err = s.repo.InStaffTransaction(ctx, staff.ID, func(ctx context.Context, locked domain.StaffMember, tx store.BookingTx) error {
		if key != "" {
			existing, err := tx.GetAppointment(ctx, draft.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, draft) {
					return store.ErrIdempotencyConflict
				}
				out, replay = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		if !locked.Active {
			return invalid(ErrStaffInactive)
		}
		if err := checkSchedule(locked); err != nil {
			return err
		}
		shift, ok := locked.Schedule().ShiftOn(start)
		if !ok || !shift.Admits(start, slot) {
			return invalid(ErrOutsideWorkingHours)
		}

		absences, err := tx.ListAbsences(ctx, locked.ID, slot)
		if err != nil {
			return err
		}
		for _, a := range absences {
			if slot.Overlaps(a.Interval()) {
				return conflict(ErrStaffAbsent)
			}
		}

		appts, err := tx.ListBlockingAppointments(ctx, locked.ID, slot)
		if err != nil {
			return err
		}
		for _, a := range appts {
			if a.Status.Blocking() && slot.Overlaps(a.Interval()) {
				return conflict(ErrSlotTaken)
			}
		}

		created, err := tx.CreateAppointment(ctx, draft)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, false, translate(err, ErrStaffNotFound)
	}
	return out, replay, nil
}

func (s *Service) validateBooking(in BookInput) (domain.Appointment, string, error) {
	if in.StaffID == uuid.Nil {
		return domain.Appointment{}, "", validationError("staff_id is required")
	}
	if in.Start.IsZero() {
		return domain.Appointment{}, "", validationError("start_time is required")
	}
	if len(in.ServiceIDs) == 0 {
		return domain.Appointment{}, "", invalid(ErrNoServicesGiven)
	}
	name := strings.TrimSpace(in.ClientName)
	if name == "" {
		return domain.Appointment{}, "", validationError("client_name is required")
	}
	phone := strings.TrimSpace(in.ClientPhone)
	if phone == "" {
		return domain.Appointment{}, "", validationError("client_phone is required")
	}

	method := in.PaymentMethod
	if method == "" {
		method = domain.PaymentCash
	}
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentWallet:
	default:
		return domain.Appointment{}, "", validationError("unsupported payment_method")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return domain.Appointment{}, "", validationError("idempotency_key too long")
	}

	return domain.Appointment{
		ClientName:    name,
		ClientPhone:   phone,
		// Stored timestamps keep microseconds; a finer start would never match on replay.
		StartTime:     in.Start.Truncate(time.Microsecond),
		PaymentMethod: method,
	}, key, nil
}

func idempotentAppointmentID(tenantID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("salonbook:book_slot:"+tenantID.String()+":"+key))
}

// sameBooking reports whether a stored appointment was created from the same request
// as draft.
func sameBooking(stored, draft domain.Appointment) bool {
	if stored.StaffID != draft.StaffID ||
		!stored.StartTime.Equal(draft.StartTime) ||
		!stored.EndTime.Equal(draft.EndTime) ||
		stored.ClientName != draft.ClientName ||
		stored.ClientPhone != draft.ClientPhone ||
		stored.PaymentMethod != draft.PaymentMethod ||
		len(stored.Services) != len(draft.Services) {
		return false
	}
	for i := range stored.Services {
		if stored.Services[i].ServiceID != draft.Services[i].ServiceID {
			return false
		}
	}
	return true
}

// loadServices resolves ids in request order. A repeated id books the service twice.
func (s *Service) loadServices(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Service, error) {
	rows, err := s.repo.ListServices(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Service, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]domain.Service, 0, len(ids))
	for _, id := range ids {
		svc, ok := byID[id]
		if !ok || svc.TenantID != tenantID {
			return nil, ErrServiceNotFound
		}
		if svc.Duration() <= 0 {
			return nil, validationError("service " + svc.Name + " has no duration")
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return domain.Appointment{}, translate(err, ErrAppointmentNotFound)
	}
	return appt, nil
}

// ConfirmAppointment confirms a Pending appointment. Confirming a confirmed appointment
// returns it unchanged.
func (s *Service) ConfirmAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.mutate(ctx, "confirm appointment", appointmentID, func(a *domain.Appointment, now time.Time) (bool, error) {
		if a.Status == domain.StatusConfirmed {
			return false, nil
		}
		return true, a.Confirm(now)
	})
}

// CancelAppointment frees the appointment's slot. Cancelling twice is a no-op.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return domain.Appointment{}, validationError("reason too long")
	}
	return s.mutate(ctx, "cancel appointment", appointmentID, func(a *domain.Appointment, now time.Time) (bool, error) {
		if a.Status == domain.StatusCancelled {
			return false, nil
		}
		return true, a.Cancel(now, reason)
	})
}

// RecordPayment registers a settled payment against the appointment. A Pending
// appointment is confirmed once the deposit is covered.
func (s *Service) RecordPayment(ctx context.Context, appointmentID uuid.UUID, amount int64, reference string) (domain.Appointment, error) {
	if amount <= 0 {
		return domain.Appointment{}, invalid(domain.ErrInvalidPayment)
	}
	reference = strings.TrimSpace(reference)
	return s.mutate(ctx, "record payment", appointmentID, func(a *domain.Appointment, now time.Time) (bool, error) {
		return true, a.RecordPayment(amount, reference, now)
	})
}

func (s *Service) mutate(ctx context.Context, op string, appointmentID uuid.UUID, fn func(a *domain.Appointment, now time.Time) (bool, error)) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking."+strings.ReplaceAll(op, " ", "_"), trace.WithAttributes(
		attribute.String("appointment.id", appointmentID.String()),
	))
	defer span.End()

	if appointmentID == uuid.Nil {
		err := validationError("appointment_id is required")
		recordSpanError(span, err)
		return domain.Appointment{}, err
	}

	var (
		out    domain.Appointment
		before domain.Status
	)
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		a, err := tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		before = a.Status
		changed, err := fn(&a, s.now().UTC())
		if err != nil {
			return err
		}
		if changed {
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		err = translate(err, ErrAppointmentNotFound)
		recordSpanError(span, err)
		s.logFailure(ctx, op, err, slog.String("appointment_id", appointmentID.String()))
		return domain.Appointment{}, err
	}

	if out.Status != before {
		s.log.InfoContext(ctx, "appointment status changed",
			slog.String("appointment_id", out.ID.String()),
			slog.String("from", string(before)),
			slog.String("to", string(out.Status)),
		)
		if typ, ok := eventFor(out.Status); ok {
			s.notify(ctx, typ, out)
		}
	}
	return out, nil
}

// ListStaffAppointments returns the staff member's agenda overlapping [from, to),
// including cancelled appointments.
func (s *Service) ListStaffAppointments(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if staffID == uuid.Nil {
		return nil, validationError("staff_id is required")
	}
	window, err := listWindow(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStaffAppointments(ctx, staffID, window)
}

func (s *Service) ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if tenantID == uuid.Nil {
		return nil, validationError("tenant_id is required")
	}
	window, err := listWindow(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTenantAppointments(ctx, tenantID, window)
}

func listWindow(from, to time.Time) (domain.Interval, error) {
	start, end := from.UTC(), to.UTC()
	if !start.Before(end) {
		return domain.Interval{}, validationError("window_end must be after window_start")
	}
	if end.Sub(start) > maxListWindow {
		return domain.Interval{}, validationError("window too long")
	}
	return domain.Interval{Start: start, End: end}, nil
}

// ExpirePending cancels Pending appointments whose payment window has closed, one batch
// per transaction, and returns how many were cancelled.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	total := 0
	for {
		expired, err := s.expireBatch(ctx)
		if err != nil {
			return total, err
		}
		total += len(expired)
		for _, a := range expired {
			s.log.InfoContext(ctx, "pending appointment expired",
				slog.String("appointment_id", a.ID.String()),
				slog.String("staff_id", a.StaffID.String()),
			)
			s.notify(ctx, EventCancelled, a)
		}
		if len(expired) < s.cfg.SweepBatch || ctx.Err() != nil {
			return total, nil
		}
	}
}

func (s *Service) expireBatch(ctx context.Context) ([]domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ExpirePending")
	defer span.End()

	var expired []domain.Appointment
	err := s.repo.InTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		expired = expired[:0]
		now := s.now().UTC()
		rows, err := tx.ListExpiredPending(ctx, now, s.cfg.SweepBatch)
		if err != nil {
			return err
		}
		for _, a := range rows {
			if !a.Expire(now) {
				continue
			}
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			expired = append(expired, a)
		}
		return nil
	})
	if err != nil {
		err = translate(err, nil)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("expired", len(expired)))
	return expired, nil
}

// notify queues ev for delivery after commit. Delivery happens off the request path,
// bounded by the notify timeout and detached from the caller's cancellation; failures
// are logged and dropped.
func (s *Service) notify(ctx context.Context, typ EventType, appt domain.Appointment) {
	if s.dispatch == nil {
		return
	}
	s.dispatch.enqueue(ctx, NewEvent(typ, appt, s.now()))
}

func (s *Service) logFailure(ctx context.Context, op string, err error, attrs ...slog.Attr) {
	class := Classify(err)
	args := make([]any, 0, len(attrs)+2)
	for _, a := range attrs {
		args = append(args, a)
	}
	args = append(args, slog.String("class", class.String()), slog.Any("err", err))

	switch class {
	case ClassConflict, ClassNotFound:
		s.log.InfoContext(ctx, op+" rejected", args...)
	case ClassInput:
		s.log.WarnContext(ctx, op+" invalid", args...)
	case ClassTransient:
		s.log.WarnContext(ctx, op+" unavailable", args...)
	default:
		s.log.ErrorContext(ctx, op+" failed", args...)
	}
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if Classify(err) == ClassInternal {
		span.SetStatus(codes.Error, err.Error())
	}
}
