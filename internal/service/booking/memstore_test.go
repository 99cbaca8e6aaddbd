package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonbook/backend/internal/domain"
	"salonbook/backend/internal/store"
)

// memRepo is an in-memory store.BookingRepository. InStaffTransaction serializes on a
// per-staff mutex the way the Postgres row lock does, and CreateAppointment enforces
// the same no-overlap constraint as the schema.
type memRepo struct {
	mu           sync.Mutex
	tenants      map[uuid.UUID]domain.Tenant
	staff        map[uuid.UUID]domain.StaffMember
	services     map[uuid.UUID]domain.Service
	absences     []domain.Absence
	appointments map[uuid.UUID]domain.Appointment

	locksMu    sync.Mutex
	staffLocks map[uuid.UUID]*sync.Mutex
	txMu       sync.Mutex

	lockErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		tenants:      make(map[uuid.UUID]domain.Tenant),
		staff:        make(map[uuid.UUID]domain.StaffMember),
		services:     make(map[uuid.UUID]domain.Service),
		appointments: make(map[uuid.UUID]domain.Appointment),
		staffLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *memRepo) staffLock(id uuid.UUID) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.staffLocks[id]
	if !ok {
		l = &sync.Mutex{}
		r.staffLocks[id] = l
	}
	return l
}

func (r *memRepo) GetTenant(ctx context.Context, tenantID uuid.UUID) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, store.ErrNotFound
	}
	return t, nil
}

func (r *memRepo) GetStaff(ctx context.Context, staffID uuid.UUID) (domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.staff[staffID]
	if !ok {
		return domain.StaffMember{}, store.ErrNotFound
	}
	return m, nil
}

func (r *memRepo) ListActiveStaff(ctx context.Context, tenantID uuid.UUID) ([]domain.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.StaffMember
	for _, m := range r.staff {
		if m.TenantID == tenantID && m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (r *memRepo) ListTenantServices(ctx context.Context, tenantID uuid.UUID) ([]domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Service
	for _, s := range r.services {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) ListServices(ctx context.Context, tenantID uuid.UUID, serviceIDs []uuid.UUID) ([]domain.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Service
	seen := make(map[uuid.UUID]bool)
	for _, id := range serviceIDs {
		s, ok := r.services[id]
		if !ok || s.TenantID != tenantID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s)
	}
	return out, nil
}

func (r *memRepo) ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.absencesLocked(staffID, window), nil
}

func (r *memRepo) absencesLocked(staffID uuid.UUID, window domain.Interval) []domain.Absence {
	var out []domain.Absence
	for _, a := range r.absences {
		if a.StaffID == staffID && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out
}

func (r *memRepo) ListStaffAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appointmentsLocked(func(a domain.Appointment) bool { return a.StaffID == staffID }, window), nil
}

func (r *memRepo) ListTenantAppointments(ctx context.Context, tenantID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appointmentsLocked(func(a domain.Appointment) bool { return a.TenantID == tenantID }, window), nil
}

func (r *memRepo) appointmentsLocked(match func(domain.Appointment) bool, window domain.Interval) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range r.appointments {
		if match(a) && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *memRepo) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (r *memRepo) InStaffTransaction(ctx context.Context, staffID uuid.UUID, fn func(ctx context.Context, staff domain.StaffMember, tx store.BookingTx) error) error {
	if r.lockErr != nil {
		return r.lockErr
	}
	l := r.staffLock(staffID)
	l.Lock()
	defer l.Unlock()

	staff, err := r.GetStaff(ctx, staffID)
	if err != nil {
		return err
	}
	return r.run(ctx, func(tx store.BookingTx) error { return fn(ctx, staff, tx) })
}

func (r *memRepo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.run(ctx, func(tx store.BookingTx) error { return fn(ctx, tx) })
}

// run discards the transaction's writes when fn fails.
func (r *memRepo) run(ctx context.Context, fn func(tx store.BookingTx) error) error {
	tx := &memTx{repo: r, writes: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range tx.writes {
		r.appointments[id] = a
	}
	return nil
}

type memTx struct {
	repo   *memRepo
	writes map[uuid.UUID]domain.Appointment
}

func (t *memTx) view(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := t.writes[id]; ok {
		return a, true
	}
	a, ok := t.repo.appointments[id]
	return a, ok
}

func (t *memTx) ListAbsences(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Absence, error) {
	return t.repo.ListAbsences(ctx, staffID, window)
}

func (t *memTx) ListBlockingAppointments(ctx context.Context, staffID uuid.UUID, window domain.Interval) ([]domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out []domain.Appointment
	for id := range t.repo.appointments {
		a, _ := t.view(id)
		if a.StaffID == staffID && a.Status.Blocking() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	for id, a := range t.writes {
		if _, ok := t.repo.appointments[id]; ok {
			continue
		}
		if a.StaffID == staffID && a.Status.Blocking() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	a, ok := t.view(appointmentID)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) GetAppointmentForUpdate(ctx context.Context, appointmentID uuid.UUID) (domain.Appointment, error) {
	return t.GetAppointment(ctx, appointmentID)
}

func (t *memTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if _, ok := t.view(appt.ID); ok {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	if appt.Status.Blocking() {
		for _, existing := range t.repo.appointments {
			if existing.StaffID == appt.StaffID && existing.Status.Blocking() && existing.Interval().Overlaps(appt.Interval()) {
				return domain.Appointment{}, store.ErrConflict
			}
		}
	}
	// TIMESTAMPTZ keeps microseconds.
	appt.StartTime = appt.StartTime.Truncate(time.Microsecond)
	appt.EndTime = appt.EndTime.Truncate(time.Microsecond)
	for i := range appt.Services {
		appt.Services[i].AppointmentID = appt.ID
		appt.Services[i].Position = i
	}
	t.writes[appt.ID] = appt
	return appt, nil
}

func (t *memTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	if _, ok := t.view(appt.ID); !ok {
		return store.ErrNotFound
	}
	t.writes[appt.ID] = appt
	return nil
}

func (t *memTx) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Appointment, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var out []domain.Appointment
	for _, a := range t.repo.appointments {
		if a.Status == domain.StatusPending && a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
