package service_test

import (
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *datatypes.Date {
	if s == "" {
		return nil
	}
	d := datatypes.Date(day(s))
	return &d
}

type window struct{ fromH, fromM, toH, toM int }

var (
	morning  = window{10, 0, 12, 0}
	overnite = window{10, 0, 5, 0}
)

func attrs(ptype, start, end, selected string, w window) entity.EventAttrs {
	return entity.EventAttrs{
		AppletID:  "applet",
		StartTime: datatypes.NewTime(w.fromH, w.fromM, 0, 0),
		EndTime:   datatypes.NewTime(w.toH, w.toM, 0, 0),
		Periodicity: entity.Periodicity{
			Type:         ptype,
			StartDate:    datePtr(start),
			EndDate:      datePtr(end),
			SelectedDate: datePtr(selected),
		},
	}
}

type dateCase struct {
	date string
	want bool
}

func runCases(t *testing.T, e entity.EventAttrs, cases []dateCase) {
	t.Helper()
	for _, c := range cases {
		t.Run(c.date, func(t *testing.T) {
			assert.Equal(t, c.want, service.IncludesDate(e, day(c.date)))
		})
	}
}

func TestEventsPeriodicityAlways(t *testing.T) {
	for _, w := range []window{morning, overnite} {
		e := attrs(entity.PeriodicityAlways, "", "", "", w)
		runCases(t, e, []dateCase{
			{"2000-01-01", true},
			{"2024-02-29", true},
			{"2099-12-31", true},
		})
	}
}

func TestEventsPeriodicityDaily(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityDaily, "2024-03-01", "2024-03-10", "", morning), []dateCase{
			{"2024-03-01", true},
			{"2024-03-10", true},
			{"2024-03-11", false},
		})
	})
	t.Run("cross day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityDaily, "2024-03-01", "2024-03-10", "", overnite), []dateCase{
			{"2024-03-10", true},
			{"2024-03-11", true},
			{"2024-03-12", false},
		})
	})
	t.Run("open ended", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityDaily, "2024-03-01", "", "", morning), []dateCase{
			{"2030-06-15", true},
		})
	})
}

func TestEventsPeriodicityOnce(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityOnce, "", "", "2024-03-10", morning), []dateCase{
			{"2024-03-09", false},
			{"2024-03-10", true},
			{"2024-03-11", false},
		})
	})
	t.Run("cross day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityOnce, "", "", "2024-03-10", overnite), []dateCase{
			{"2024-03-09", false},
			{"2024-03-10", true},
			{"2024-03-11", true},
			{"2024-03-12", false},
		})
	})
	t.Run("no selected date", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityOnce, "", "", "", morning), []dateCase{
			{"2024-03-10", false},
		})
	})
}

func TestEventsPeriodicityWeekdays(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityWeekdays, "2024-03-01", "2024-03-31", "", morning), []dateCase{
			{"2024-03-11", true},  // Monday
			{"2024-03-15", true},  // Friday
			{"2024-03-16", false}, // Saturday
			{"2024-03-17", false}, // Sunday
			{"2024-04-01", false}, // Monday after end
		})
	})
	t.Run("cross day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityWeekdays, "2024-03-01", "2024-03-31", "", overnite), []dateCase{
			{"2024-03-15", true},
			{"2024-03-16", true},
			{"2024-03-17", false},
		})
	})
}

func TestEventsPeriodicityWeekly(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityWeekly, "2024-03-10", "2024-03-24", "", morning), []dateCase{
			{"2024-03-10", true},
			{"2024-03-17", true},
			{"2024-03-18", false},
			{"2024-03-24", true},
			{"2024-03-31", false},
		})
	})
	t.Run("cross day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityWeekly, "2024-03-10", "2024-03-24", "", overnite), []dateCase{
			{"2024-03-17", true},
			{"2024-03-18", true},
			{"2024-03-19", false},
			{"2024-03-25", false},
		})
	})
	t.Run("cross day wraps past sunday", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityWeekly, "2024-03-16", "", "", overnite), []dateCase{
			{"2024-03-23", true},
			{"2024-03-24", true},
			{"2024-03-25", false},
		})
	})
}

func TestEventsPeriodicityMonthly(t *testing.T) {
	t.Run("same day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityMonthly, "2024-03-15", "2024-05-01", "", morning), []dateCase{
			{"2024-03-15", true},
			{"2024-04-15", true},
			{"2024-04-16", false},
			{"2024-05-15", false},
		})
	})
	t.Run("cross day", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityMonthly, "2024-03-15", "", "", overnite), []dateCase{
			{"2024-04-15", true},
			{"2024-04-16", true},
			{"2024-04-17", false},
		})
	})
	t.Run("last day of month", func(t *testing.T) {
		runCases(t, attrs(entity.PeriodicityMonthly, "2024-01-31", "", "", morning), []dateCase{
			{"2024-02-01", true},
			{"2024-03-31", true},
			{"2024-04-01", true},
			{"2024-04-30", false},
			{"2024-03-15", false},
		})
	})
}

func TestFilterEventsCrossDayWeekly(t *testing.T) {
	weekly := entity.Event{ID: "weekly", EventAttrs: attrs(entity.PeriodicityWeekly, "2024-03-10", "2024-03-24", "", overnite)}
	once := entity.Event{ID: "once", EventAttrs: attrs(entity.PeriodicityOnce, "", "", "2024-03-17", morning)}
	events := []entity.Event{weekly, once}

	ids := func(es []entity.Event) []string {
		out := []string{}
		for _, e := range es {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"weekly", "once"}, ids(service.FilterEvents(events, day("2024-03-17"))))
	assert.Equal(t, []string{"weekly"}, ids(service.FilterEvents(events, day("2024-03-18"))))
	assert.Empty(t, service.FilterEvents(events, day("2024-03-19")))
}

func TestIncludesRange(t *testing.T) {
	e := attrs(entity.PeriodicityWeekly, "2024-03-10", "", "", morning)
	assert.False(t, service.IncludesRange(e, day("2024-03-11"), day("2024-03-16")))
	assert.True(t, service.IncludesRange(e, day("2024-03-11"), day("2024-03-17")))
	assert.True(t, service.IncludesRange(attrs(entity.PeriodicityAlways, "", "", "", morning), day("2024-03-11"), day("2024-03-11")))
}

func TestIncludesRangeFutureStart(t *testing.T) {
	from, to := day("2024-03-11"), day("2024-03-16")
	for _, ptype := range []string{entity.PeriodicityDaily, entity.PeriodicityWeekdays, entity.PeriodicityWeekly, entity.PeriodicityMonthly} {
		t.Run(ptype, func(t *testing.T) {
			e := attrs(ptype, "2030-01-01", "2030-12-31", "", morning)
			assert.False(t, service.IncludesRange(e, from, to))
		})
	}

	daily := attrs(entity.PeriodicityDaily, "2024-03-14", "2024-03-31", "", morning)
	assert.True(t, service.IncludesRange(daily, from, to), "starts inside the range")
	assert.False(t, service.IncludesRange(daily, from, day("2024-03-13")))

	once := attrs(entity.PeriodicityOnce, "2030-01-01", "", "2024-03-12", morning)
	assert.True(t, service.IncludesRange(once, from, to), "ONCE follows selected_date")
}

func TestToScheduleDto(t *testing.T) {
	act := "activity-1"
	always := entity.Event{ID: "e1", EventAttrs: attrs(entity.PeriodicityAlways, "", "", "", window{0, 0, 23, 59})}
	always.ActivityID = &act
	always.TimerType = entity.TimerTimer
	always.Timer = 90 * 60

	dto := service.ToScheduleDto(always)
	assert.Equal(t, service.AvailabilityAlways, dto.AvailabilityType)
	assert.Equal(t, "activity-1", dto.EntityID)
	assert.Equal(t, &service.TimeDto{Hours: 23, Minutes: 59}, dto.Availability.TimeTo)
	assert.Equal(t, &service.TimeDto{Hours: 1, Minutes: 30}, dto.Timers.Timer)
	assert.Nil(t, dto.Timers.IdleTimer)
	assert.Nil(t, dto.NotificationSettings)

	weekly := entity.Event{ID: "e2", EventAttrs: attrs(entity.PeriodicityWeekly, "2024-03-10", "2024-03-24", "", overnite)}
	dto = service.ToScheduleDto(weekly)
	assert.Equal(t, service.AvailabilityScheduled, dto.AvailabilityType)
	assert.Equal(t, "2024-03-10", *dto.Availability.StartDate)
	assert.Equal(t, "2024-03-24", *dto.Availability.EndDate)
	assert.Equal(t, &service.TimeDto{Hours: 10}, dto.Availability.TimeFrom)
}
