package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TimeOfDay is a wall-clock time expressed as minutes after midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// On returns the instant at which this wall-clock time occurs on day's civil date,
// in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

type WorkShift struct {
	bun.BaseModel `bun:"table:staff_shifts"`

	StaffID    uuid.UUID    `bun:"staff_id,pk,type:uuid"`
	Weekday    time.Weekday `bun:"weekday,pk"`
	Start      TimeOfDay    `bun:"start_minute,notnull"`
	End        TimeOfDay    `bun:"end_minute,notnull"`
	LunchStart *TimeOfDay   `bun:"lunch_start_minute"`
	LunchEnd   *TimeOfDay   `bun:"lunch_end_minute"`
}

var ErrInvalidShift = errors.New("invalid work shift")

// Validate enforces a same-day shift (overnight shifts are not supported) and a lunch
// break lying inside it.
func (s WorkShift) Validate() error {
	if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidShift, s.Weekday)
	}
	if s.Start < 0 || s.End > minutesPerDay || s.Start >= s.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidShift, s.Start, s.End)
	}
	if (s.LunchStart == nil) != (s.LunchEnd == nil) {
		return fmt.Errorf("%w: lunch needs both start and end", ErrInvalidShift)
	}
	if s.LunchStart != nil {
		ls, le := *s.LunchStart, *s.LunchEnd
		if ls > le || ls < s.Start || le > s.End {
			return fmt.Errorf("%w: lunch %s-%s outside shift %s-%s", ErrInvalidShift, ls, le, s.Start, s.End)
		}
	}
	return nil
}

func (s WorkShift) hasLunch() bool {
	return s.LunchStart != nil && s.LunchEnd != nil && *s.LunchStart < *s.LunchEnd
}

// Window resolves the shift on day's civil date. The lunch interval is empty when the
// shift has no lunch break or a zero-length one.
func (s WorkShift) Window(day time.Time) (work Interval, lunch Interval) {
	work = Interval{Start: s.Start.On(day), End: s.End.On(day)}
	if s.hasLunch() {
		lunch = Interval{Start: s.LunchStart.On(day), End: s.LunchEnd.On(day)}
	}
	return work, lunch
}

// Admits reports whether slot lies inside the shift on day and clear of the lunch break.
func (s WorkShift) Admits(day time.Time, slot Interval) bool {
	work, lunch := s.Window(day)
	if !work.Contains(slot) {
		return false
	}
	return lunch.Empty() || !slot.Overlaps(lunch)
}

type WeeklySchedule []WorkShift

func (w WeeklySchedule) ShiftOn(day time.Time) (WorkShift, bool) {
	wd := day.Weekday()
	for _, s := range w {
		if s.Weekday == wd {
			return s, true
		}
	}
	return WorkShift{}, false
}

func (w WeeklySchedule) Validate() error {
	seen := make(map[time.Weekday]struct{}, len(w))
	for _, s := range w {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := seen[s.Weekday]; ok {
			return fmt.Errorf("%w: duplicate shift for %s", ErrInvalidShift, s.Weekday)
		}
		seen[s.Weekday] = struct{}{}
	}
	return nil
}

type StaffMember struct {
	bun.BaseModel `bun:"table:staff_members"`

	ID          uuid.UUID   `bun:"id,pk,type:uuid"`
	TenantID    uuid.UUID   `bun:"tenant_id,notnull,type:uuid"`
	DisplayName string      `bun:"display_name,notnull"`
	Active      bool        `bun:"active,notnull"`
	Shifts      []WorkShift `bun:"rel:has-many,join:id=staff_id"`
	CreatedAt   time.Time   `bun:"created_at,notnull"`
	UpdatedAt   time.Time   `bun:"updated_at,notnull"`
}

func (m StaffMember) Schedule() WeeklySchedule {
	return WeeklySchedule(m.Shifts)
}

func (m *StaffMember) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if m.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			m.ID = id
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		m.UpdatedAt = now
	}
	return nil
}

type Absence struct {
	bun.BaseModel `bun:"table:absences"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	StaffID   uuid.UUID `bun:"staff_id,notnull,type:uuid"`
	StartTime time.Time `bun:"start_time,notnull"`
	EndTime   time.Time `bun:"end_time,notnull"`
	Reason    string    `bun:"reason"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (a Absence) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func (a *Absence) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if !a.StartTime.Before(a.EndTime) {
		return errors.New("absence start must be before end")
	}
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}
