package domain

import "time"

const DefaultSlotStep = 30 * time.Minute

// SlotQuery is a read-only snapshot of everything that decides one staff member's free
// start times on one civil date.
type SlotQuery struct {
	Schedule     WeeklySchedule
	Day          time.Time // any instant on the date, in the business location
	Duration     time.Duration
	Step         time.Duration
	Appointments []Appointment
	Absences     []Absence
}

// ComputeFreeSlots walks the shift for q.Day from its start in q.Step increments and
// returns, in ascending order, every start time whose [start, start+Duration) interval
// fits the shift and overlaps neither the lunch break, a blocking appointment nor an
// absence. A day without a shift yields no slots.
func ComputeFreeSlots(q SlotQuery) []time.Time {
	if q.Duration <= 0 {
		return nil
	}
	step := q.Step
	if step <= 0 {
		step = DefaultSlotStep
	}

	shift, ok := q.Schedule.ShiftOn(q.Day)
	if !ok {
		return []time.Time{}
	}
	work, _ := shift.Window(q.Day)

	busy := BusyIntervals(q.Appointments, q.Absences)

	slots := []time.Time{}
	for t := work.Start; !t.Add(q.Duration).After(work.End); t = t.Add(step) {
		slot := NewInterval(t, q.Duration)
		if !shift.Admits(q.Day, slot) {
			continue
		}
		if overlapsAny(slot, busy) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

// BusyIntervals collects the intervals that block new bookings: every non-cancelled
// appointment and every absence.
func BusyIntervals(appts []Appointment, absences []Absence) []Interval {
	busy := make([]Interval, 0, len(appts)+len(absences))
	for _, a := range appts {
		if a.Status.Blocking() {
			busy = append(busy, a.Interval())
		}
	}
	for _, a := range absences {
		busy = append(busy, a.Interval())
	}
	return busy
}
