package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/service/booking"
	"salonbook/backend/internal/store"
)

type fakeBookingService struct {
	getFreeSlotsFn  func(ctx context.Context, in booking.FreeSlotsInput) ([]time.Time, error)
	bookSlotFn      func(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	getFn           func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	confirmFn       func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	cancelFn        func(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	recordPaymentFn func(ctx context.Context, id uuid.UUID, amount int64, reference string) (domain.Appointment, error)
	listStaffFn     func(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
	listTenantFn    func(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
	tenantSlotsFn   func(ctx context.Context, tenantID uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error)
	catalogFn       func(ctx context.Context, tenantID uuid.UUID) (booking.Catalog, error)
}

func (f *fakeBookingService) GetFreeSlots(ctx context.Context, in booking.FreeSlotsInput) ([]time.Time, error) {
	if f.getFreeSlotsFn == nil {
		panic("GetFreeSlots not configured")
	}
	return f.getFreeSlotsFn(ctx, in)
}

func (f *fakeBookingService) BookSlot(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
	if f.bookSlotFn == nil {
		panic("BookSlot not configured")
	}
	return f.bookSlotFn(ctx, in)
}

func (f *fakeBookingService) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeBookingService) ConfirmAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.confirmFn == nil {
		panic("ConfirmAppointment not configured")
	}
	return f.confirmFn(ctx, id)
}

func (f *fakeBookingService) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("CancelAppointment not configured")
	}
	return f.cancelFn(ctx, id, reason)
}

func (f *fakeBookingService) RecordPayment(ctx context.Context, id uuid.UUID, amount int64, reference string) (domain.Appointment, error) {
	if f.recordPaymentFn == nil {
		panic("RecordPayment not configured")
	}
	return f.recordPaymentFn(ctx, id, amount, reference)
}

func (f *fakeBookingService) ListStaffAppointments(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if f.listStaffFn == nil {
		panic("ListStaffAppointments not configured")
	}
	return f.listStaffFn(ctx, staffID, from, to)
}

func (f *fakeBookingService) ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if f.listTenantFn == nil {
		panic("ListTenantAppointments not configured")
	}
	return f.listTenantFn(ctx, tenantID, from, to)
}

func (f *fakeBookingService) GetTenantFreeSlots(ctx context.Context, tenantID uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error) {
	if f.tenantSlotsFn == nil {
		panic("GetTenantFreeSlots not configured")
	}
	return f.tenantSlotsFn(ctx, tenantID, date, serviceIDs)
}

func (f *fakeBookingService) GetCatalog(ctx context.Context, tenantID uuid.UUID) (booking.Catalog, error) {
	if f.catalogFn == nil {
		panic("GetCatalog not configured")
	}
	return f.catalogFn(ctx, tenantID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}

	if got := idempotencyKey(context.Background()); got != "" {
		t.Fatalf("idempotencyKey without metadata = %q, want empty", got)
	}
}

func TestBookSlot_PassesInputAndIdempotencyKey(t *testing.T) {
	staffID := uuid.New()
	serviceID := uuid.New()
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)

	var got booking.BookInput
	srv := NewBookingServer(&fakeBookingService{
		bookSlotFn: func(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
			got = in
			return domain.Appointment{
				ID:         uuid.New(),
				StaffID:    in.StaffID,
				StartTime:  in.Start,
				EndTime:    in.Start.Add(time.Hour),
				Status:     domain.StatusPending,
				TotalPrice: 40000,
				DepositDue: 20000,
				AmountPaid: 5000,
				Services: []domain.AppointmentService{
					{ServiceID: serviceID, Name: "cut", DurationSeconds: 3600, Price: 40000},
				},
			}, nil
		},
	}, discardLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k-1"))
	resp, err := srv.BookSlot(ctx, &BookSlotRequest{
		StaffID:       staffID.String(),
		StartTime:     start,
		ServiceIDs:    []string{serviceID.String()},
		ClientName:    "Ana",
		ClientPhone:   "+57 300",
		PaymentMethod: " Card ",
	})
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}

	if got.StaffID != staffID || !got.Start.Equal(start) || got.IdempotencyKey != "k-1" {
		t.Fatalf("unexpected input: %+v", got)
	}
	if got.PaymentMethod != domain.PaymentCard {
		t.Fatalf("payment method = %q, want %q", got.PaymentMethod, domain.PaymentCard)
	}
	if len(got.ServiceIDs) != 1 || got.ServiceIDs[0] != serviceID {
		t.Fatalf("service ids = %v", got.ServiceIDs)
	}

	a := resp.Appointment
	if a.Status != "pending" || a.PendingBalance != 35000 {
		t.Fatalf("unexpected appointment view: status=%s balance=%d", a.Status, a.PendingBalance)
	}
	if len(a.Services) != 1 || a.Services[0].DurationMinutes != 60 {
		t.Fatalf("unexpected services view: %+v", a.Services)
	}
}

func TestBookSlot_RejectsMalformedRequests(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, discardLogger())
	valid := uuid.NewString()

	cases := []struct {
		name string
		req  *BookSlotRequest
	}{
		{name: "nil", req: nil},
		{name: "bad staff", req: &BookSlotRequest{StaffID: "nope", StartTime: time.Now(), ServiceIDs: []string{valid}}},
		{name: "no start", req: &BookSlotRequest{StaffID: valid, ServiceIDs: []string{valid}}},
		{name: "bad service", req: &BookSlotRequest{StaffID: valid, StartTime: time.Now(), ServiceIDs: []string{"x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := srv.BookSlot(context.Background(), tc.req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want InvalidArgument (err=%v)", status.Code(err), err)
			}
		})
	}
}

func TestBookSlot_MapsErrorClasses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "slot taken", err: &booking.ConflictError{Err: booking.ErrSlotTaken}, want: codes.FailedPrecondition},
		{name: "idempotency", err: &booking.ConflictError{Err: store.ErrIdempotencyConflict}, want: codes.FailedPrecondition},
		{name: "input", err: fmt.Errorf("book slot: %w", &booking.ValidationError{}), want: codes.InvalidArgument},
		{name: "staff missing", err: booking.ErrStaffNotFound, want: codes.NotFound},
		{name: "lock timeout", err: &booking.TransientError{Err: store.ErrLockTimeout}, want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.Unavailable},
		{name: "internal", err: errors.New("connection reset"), want: codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewBookingServer(&fakeBookingService{
				bookSlotFn: func(ctx context.Context, in booking.BookInput) (domain.Appointment, error) {
					return domain.Appointment{}, tc.err
				},
			}, discardLogger())

			_, err := srv.BookSlot(context.Background(), &BookSlotRequest{
				StaffID:    uuid.NewString(),
				StartTime:  time.Now(),
				ServiceIDs: []string{uuid.NewString()},
			})
			if status.Code(err) != tc.want {
				t.Fatalf("code = %v, want %v (err=%v)", status.Code(err), tc.want, err)
			}
			if tc.want == codes.Internal {
				if msg := status.Convert(err).Message(); msg != "internal error" {
					t.Fatalf("internal message leaked: %q", msg)
				}
			}
		})
	}
}

func TestConflictMessage_IsUserFacing(t *testing.T) {
	err := &booking.ConflictError{Err: booking.ErrSlotTaken}
	if got := conflictMessage(err); got != "That time was just taken. Pick a different slot." {
		t.Fatalf("conflictMessage = %q", got)
	}
}

func TestGetFreeSlots_ParsesDate(t *testing.T) {
	var got booking.FreeSlotsInput
	want := []time.Time{time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)}
	srv := NewBookingServer(&fakeBookingService{
		getFreeSlotsFn: func(ctx context.Context, in booking.FreeSlotsInput) ([]time.Time, error) {
			got = in
			return want, nil
		},
	}, discardLogger())

	resp, err := srv.GetFreeSlots(context.Background(), &GetFreeSlotsRequest{
		StaffID:    uuid.NewString(),
		Date:       "2026-01-05",
		ServiceIDs: []string{uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("GetFreeSlots: %v", err)
	}
	if y, m, d := got.Date.Date(); y != 2026 || m != time.January || d != 5 {
		t.Fatalf("date = %v", got.Date)
	}
	if len(resp.Slots) != 1 || !resp.Slots[0].Equal(want[0]) {
		t.Fatalf("slots = %v", resp.Slots)
	}

	_, err = srv.GetFreeSlots(context.Background(), &GetFreeSlotsRequest{
		StaffID:    uuid.NewString(),
		Date:       "05/01/2026",
		ServiceIDs: []string{uuid.NewString()},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGetFreeSlots_TenantWideListsStaffInOrder(t *testing.T) {
	tenantID := uuid.New()
	first := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	second := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	at := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)

	srv := NewBookingServer(&fakeBookingService{
		tenantSlotsFn: func(ctx context.Context, id uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error) {
			if id != tenantID || len(serviceIDs) != 1 {
				t.Fatalf("unexpected args %s %v", id, serviceIDs)
			}
			return map[uuid.UUID][]time.Time{second: {at}, first: {at, at.Add(15 * time.Minute)}}, nil
		},
	}, discardLogger())

	resp, err := srv.GetFreeSlots(context.Background(), &GetFreeSlotsRequest{
		TenantID:   tenantID.String(),
		Date:       "2026-01-05",
		ServiceIDs: []string{uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("GetFreeSlots: %v", err)
	}
	if len(resp.Slots) != 0 || len(resp.Staff) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Staff[0].StaffID != first.String() || len(resp.Staff[0].Slots) != 2 || resp.Staff[1].StaffID != second.String() {
		t.Fatalf("staff = %+v", resp.Staff)
	}
}

func TestGetFreeSlots_RequiresExactlyOneOwner(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, discardLogger())

	cases := map[string]*GetFreeSlotsRequest{
		"none":       {Date: "2026-01-05"},
		"both":       {StaffID: uuid.NewString(), TenantID: uuid.NewString(), Date: "2026-01-05"},
		"bad tenant": {TenantID: "salon", Date: "2026-01-05"},
	}
	for name, req := range cases {
		if _, err := srv.GetFreeSlots(context.Background(), req); status.Code(err) != codes.InvalidArgument {
			t.Fatalf("%s: code = %v, want InvalidArgument", name, status.Code(err))
		}
	}
}

func TestGetFreeSlots_UnknownTenantIsNotFound(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		tenantSlotsFn: func(ctx context.Context, id uuid.UUID, date time.Time, serviceIDs []uuid.UUID) (map[uuid.UUID][]time.Time, error) {
			return nil, booking.ErrTenantNotFound
		},
	}, discardLogger())

	_, err := srv.GetFreeSlots(context.Background(), &GetFreeSlotsRequest{TenantID: uuid.NewString(), Date: "2026-01-05"})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", status.Code(err))
	}
	if msg := status.Convert(err).Message(); msg != "tenant not found" {
		t.Fatalf("message = %q", msg)
	}
}

func TestGetCatalog_MapsStaffAndServices(t *testing.T) {
	tenantID := uuid.New()
	staffID := uuid.New()
	serviceID := uuid.New()
	srv := NewBookingServer(&fakeBookingService{
		catalogFn: func(ctx context.Context, id uuid.UUID) (booking.Catalog, error) {
			if id != tenantID {
				t.Fatalf("tenant id = %s", id)
			}
			return booking.Catalog{
				Staff:    []domain.StaffMember{{ID: staffID, DisplayName: "Ana"}},
				Services: []domain.Service{{ID: serviceID, Name: "Corte", DurationSeconds: 2700, Price: 25000}},
			}, nil
		},
	}, discardLogger())

	resp, err := srv.GetCatalog(context.Background(), &GetCatalogRequest{TenantID: tenantID.String()})
	if err != nil {
		t.Fatalf("GetCatalog: %v", err)
	}
	if len(resp.Staff) != 1 || resp.Staff[0].ID != staffID.String() || resp.Staff[0].DisplayName != "Ana" {
		t.Fatalf("staff = %+v", resp.Staff)
	}
	want := Service{ID: serviceID.String(), Name: "Corte", DurationMinutes: 45, Price: 25000}
	if len(resp.Services) != 1 || resp.Services[0] != want {
		t.Fatalf("services = %+v", resp.Services)
	}

	if _, err := srv.GetCatalog(context.Background(), &GetCatalogRequest{TenantID: "x"}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestCancelAppointment_MapsInvalidTransition(t *testing.T) {
	id := uuid.New()
	srv := NewBookingServer(&fakeBookingService{
		cancelFn: func(ctx context.Context, got uuid.UUID, reason string) (domain.Appointment, error) {
			if got != id || reason != "client asked" {
				t.Fatalf("unexpected args %s %q", got, reason)
			}
			return domain.Appointment{}, &booking.ConflictError{Err: domain.ErrInvalidTransition}
		},
	}, discardLogger())

	_, err := srv.CancelAppointment(context.Background(), &CancelAppointmentRequest{AppointmentID: id.String(), Reason: "client asked"})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %v, want FailedPrecondition", status.Code(err))
	}

	_, err = srv.CancelAppointment(context.Background(), &CancelAppointmentRequest{AppointmentID: "bad"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestListAppointments_RoutesByOwner(t *testing.T) {
	staffID := uuid.New()
	tenantID := uuid.New()
	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	var staffCalls, tenantCalls int
	srv := NewBookingServer(&fakeBookingService{
		listStaffFn: func(ctx context.Context, id uuid.UUID, f, tt time.Time) ([]domain.Appointment, error) {
			staffCalls++
			if id != staffID {
				t.Fatalf("staff id = %s", id)
			}
			return []domain.Appointment{{ID: uuid.New()}}, nil
		},
		listTenantFn: func(ctx context.Context, id uuid.UUID, f, tt time.Time) ([]domain.Appointment, error) {
			tenantCalls++
			if id != tenantID {
				t.Fatalf("tenant id = %s", id)
			}
			return nil, nil
		},
	}, discardLogger())

	resp, err := srv.ListAppointments(context.Background(), &ListAppointmentsRequest{StaffID: staffID.String(), WindowStart: from, WindowEnd: to})
	if err != nil || len(resp.Appointments) != 1 {
		t.Fatalf("staff list = %v, %v", resp, err)
	}
	if _, err := srv.ListAppointments(context.Background(), &ListAppointmentsRequest{TenantID: tenantID.String(), WindowStart: from, WindowEnd: to}); err != nil {
		t.Fatalf("tenant list: %v", err)
	}
	if staffCalls != 1 || tenantCalls != 1 {
		t.Fatalf("calls staff=%d tenant=%d", staffCalls, tenantCalls)
	}

	_, err = srv.ListAppointments(context.Background(), &ListAppointmentsRequest{
		StaffID: staffID.String(), TenantID: tenantID.String(), WindowStart: from, WindowEnd: to,
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("both owners: code = %v, want InvalidArgument", status.Code(err))
	}
	_, err = srv.ListAppointments(context.Background(), &ListAppointmentsRequest{StaffID: staffID.String()})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing window: code = %v, want InvalidArgument", status.Code(err))
	}
}
