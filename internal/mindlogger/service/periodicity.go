package service

import (
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/datatypes"
)

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateValue(d *datatypes.Date) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	return dayOf(time.Time(*d)), true
}

// mondayIndex numbers weekdays Monday=0 .. Sunday=6.
func mondayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// notAfterEnd reports date <= end_date, with end extended by spill days.
func notAfterEnd(p entity.Periodicity, date time.Time, spill int) bool {
	end, ok := dateValue(p.EndDate)
	if !ok {
		return true
	}
	return !date.After(end.AddDate(0, 0, spill))
}

// IncludesDate reports whether an event is available on the calendar date.
// A cross-day event (start_time after end_time) also covers the morning of
// the day after each of its days.
func IncludesDate(e entity.EventAttrs, date time.Time) bool {
	date = dayOf(date)
	p := e.Periodicity
	spill := 0
	if e.CrossDay() {
		spill = 1
	}

	switch p.Type {
	case entity.PeriodicityAlways:
		return true

	case entity.PeriodicityDaily:
		return notAfterEnd(p, date, spill)

	case entity.PeriodicityOnce:
		sel, ok := dateValue(p.SelectedDate)
		if !ok {
			return false
		}
		return !date.Before(sel) && !date.After(sel.AddDate(0, 0, spill))

	case entity.PeriodicityWeekdays:
		last := 4 // Friday
		if spill == 1 {
			last = 5
		}
		return mondayIndex(date) <= last && notAfterEnd(p, date, 0)

	case entity.PeriodicityWeekly:
		start, ok := dateValue(p.StartDate)
		if !ok {
			return false
		}
		wd := mondayIndex(start)
		match := mondayIndex(date) == wd || (spill == 1 && mondayIndex(date) == (wd+1)%7)
		return match && notAfterEnd(p, date, 0)

	case entity.PeriodicityMonthly:
		start, ok := dateValue(p.StartDate)
		if !ok {
			return false
		}
		if !notAfterEnd(p, date, 0) {
			return false
		}
		if monthlyMatch(start, date) {
			return true
		}
		return spill == 1 && monthlyMatch(start, date.AddDate(0, 0, -1))
	}
	return false
}

// monthlyMatch matches the day of month of start. When start is the last day
// of its month, day 1 also matches so short months are not skipped.
func monthlyMatch(start, date time.Time) bool {
	if date.Day() == start.Day() {
		return true
	}
	return isLastDayOfMonth(start) && date.Day() == 1
}

// FilterEvents keeps the events available on date, in input order.
func FilterEvents(events []entity.Event, date time.Time) []entity.Event {
	out := make([]entity.Event, 0, len(events))
	for _, e := range events {
		if IncludesDate(e.EventAttrs, date) {
			out = append(out, e)
		}
	}
	return out
}

// IncludesRange reports whether the event is available on any day of
// [from, to]. Repeating events are not available before their start_date.
// The scan is capped at one year.
func IncludesRange(e entity.EventAttrs, from, to time.Time) bool {
	p := e.Periodicity
	if p.Type == entity.PeriodicityAlways {
		return true
	}
	from, to = dayOf(from), dayOf(to)
	if p.Type != entity.PeriodicityOnce {
		if start, ok := dateValue(p.StartDate); ok {
			if start.After(to) {
				return false
			}
			if start.After(from) {
				from = start
			}
		}
	}
	for d, n := from, 0; !d.After(to) && n <= 366; d, n = d.AddDate(0, 0, 1), n+1 {
		if IncludesDate(e, d) {
			return true
		}
	}
	return false
}
