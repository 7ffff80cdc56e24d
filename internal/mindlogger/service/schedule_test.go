package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func weeklyRequest(activityID string) *service.EventRequest {
	return &service.EventRequest{
		ActivityID: &activityID,
		StartTime:  "10:00",
		EndTime:    "05:00",
		TimerType:  entity.TimerTimer,
		Timer:      "01:30",
		Periodicity: service.PeriodicityRequest{
			Type:         entity.PeriodicityWeekly,
			StartDate:    strp("2024-03-10"),
			EndDate:      strp("2024-03-24"),
			SelectedDate: strp("2024-03-10"),
		},
	}
}

func TestScheduleCreateWeekly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ev, err := f.env.Services.Schedule.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)
	assert.True(t, ev.CrossDay())
	assert.Equal(t, int64(90*60), ev.Timer)
	assert.NotEmpty(t, ev.Version)
	assert.True(t, service.IncludesDate(ev.EventAttrs, day("2024-03-18")))

	events, err := f.env.Services.Schedule.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2, "default event stays next to the weekly one")
}

func TestScheduleAlwaysSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule

	_, err := sched.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)

	act := f.activityID()
	always, err := sched.Create(ctx, f.owner.ID, f.applet.ID, &service.EventRequest{
		ActivityID:        &act,
		OneTimeCompletion: true,
		Periodicity:       service.PeriodicityRequest{Type: entity.PeriodicityAlways},
	})
	require.NoError(t, err)

	events, err := sched.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, always.ID, events[0].ID)

	dtos, err := sched.UserEvents(ctx, f.owner.ID, f.applet.ID)
	require.NoError(t, err)
	require.Len(t, dtos, 1)
	assert.Equal(t, service.AvailabilityAlways, dtos[0].AvailabilityType)
	assert.True(t, dtos[0].Availability.OneTimeCompletion)
	assert.Equal(t, act, dtos[0].EntityID)
}

func TestScheduleRejectsInvalidEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule
	act := f.activityID()

	_, err := sched.Create(ctx, f.owner.ID, f.applet.ID, &service.EventRequest{
		Periodicity: service.PeriodicityRequest{Type: entity.PeriodicityAlways},
	})
	assertCode(t, err, "EVENT_ENTITY_REQUIRED")

	same := weeklyRequest(act)
	same.EndTime = same.StartTime
	_, err = sched.Create(ctx, f.owner.ID, f.applet.ID, same)
	assertCode(t, err, "INVALID_EVENT_TIME")

	_, err = sched.Create(ctx, f.owner.ID, f.applet.ID, &service.EventRequest{
		ActivityID:  strp("missing"),
		Periodicity: service.PeriodicityRequest{Type: entity.PeriodicityAlways},
	})
	assertCode(t, err, "ACTIVITY_NOT_FOUND")

	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	_, err = sched.Create(ctx, resp.ID, f.applet.ID, weeklyRequest(act))
	assertCode(t, err, "ACCESS_DENIED")
}

func TestScheduleDeleteRestoresDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule

	events, err := sched.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, sched.Delete(ctx, f.owner.ID, f.applet.ID, events[0].ID))

	after, err := sched.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, events[0].ID, after[0].ID)
	assert.Equal(t, entity.PeriodicityAlways, after[0].Periodicity.Type)

	_, err = sched.Get(ctx, f.owner.ID, f.applet.ID, events[0].ID)
	assertCode(t, err, "EVENT_NOT_FOUND")
}

func TestScheduleIndividual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	created, err := sched.CreateIndividual(ctx, f.owner.ID, f.applet.ID, resp.ID)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].UserID)
	assert.Equal(t, resp.ID, *created[0].UserID)

	_, err = sched.CreateIndividual(ctx, f.owner.ID, f.applet.ID, resp.ID)
	assertCode(t, err, "INDIVIDUAL_SCHEDULE_EXISTS")

	req := weeklyRequest(f.activityID())
	req.RespondentID = &resp.ID
	weekly, err := sched.Create(ctx, f.owner.ID, f.applet.ID, req)
	require.NoError(t, err)

	mine, err := sched.List(ctx, f.owner.ID, f.applet.ID, &resp.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	// the respondent sees only the individual schedule, the owner only defaults
	dtos, err := sched.UserEvents(ctx, resp.ID, f.applet.ID)
	require.NoError(t, err)
	ids := []string{}
	for _, d := range dtos {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, weekly.ID)
	assert.Contains(t, ids, created[0].ID)

	ownerDtos, err := sched.UserEvents(ctx, f.owner.ID, f.applet.ID)
	require.NoError(t, err)
	require.Len(t, ownerDtos, 1)
	assert.NotEqual(t, created[0].ID, ownerDtos[0].ID)

	require.NoError(t, sched.DeleteByUser(ctx, f.owner.ID, f.applet.ID, resp.ID))
	mine, err = sched.List(ctx, f.owner.ID, f.applet.ID, &resp.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestScheduleUpdateBumpsEventVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule

	ev, err := sched.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)

	req := weeklyRequest(f.activityID())
	req.EndTime = "11:00"
	updated, err := sched.Update(ctx, f.owner.ID, f.applet.ID, ev.ID, req)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, updated.ID)
	assert.NotEqual(t, ev.Version, updated.Version)
	assert.False(t, updated.CrossDay())

	history, err := f.env.Repos.Event.ListHistory(ctx, f.applet.ID)
	require.NoError(t, err)
	versions := 0
	for _, h := range history {
		if h.ID == ev.ID {
			versions++
		}
	}
	assert.Equal(t, 2, versions)
}

func TestUpcomingEventsRecordsDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule

	_, err := sched.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)

	device := service.DeviceInfo{DeviceID: "device-1", OSName: "ios", OSVersion: "17.2", AppVersion: "1.4.0"}
	got, err := sched.UpcomingEvents(ctx, f.owner.ID, device, day("2024-03-11"), day("2024-03-16"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.applet.ID, got[0].AppletID)
	require.Len(t, got[0].Events, 2, "the Sunday event runs into Monday morning")
	kinds := []string{got[0].Events[0].AvailabilityType, got[0].Events[1].AvailabilityType}
	assert.ElementsMatch(t, []string{service.AvailabilityAlways, service.AvailabilityScheduled}, kinds)

	var devices []entity.UserDevice
	require.NoError(t, f.env.DB.Find(&devices).Error)
	require.Len(t, devices, 1)
	assert.Equal(t, "device-1", devices[0].DeviceID)
	assert.Equal(t, "1.4.0", devices[0].AppVersion)

	var served int64
	require.NoError(t, f.env.DB.Model(&entity.UserDeviceEventHistory{}).Count(&served).Error)
	assert.Equal(t, int64(2), served)

	got, err = sched.UpcomingEvents(ctx, f.owner.ID, service.DeviceInfo{}, day("2024-03-12"), day("2024-03-16"))
	require.NoError(t, err)
	require.Len(t, got[0].Events, 1, "no weekly occurrence from Tuesday to Saturday")
	assert.Equal(t, service.AvailabilityAlways, got[0].Events[0].AvailabilityType)
}

func TestUpcomingEventsSkipsFutureStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := f.env.Services.Schedule
	act := f.activityID()

	_, err := sched.Create(ctx, f.owner.ID, f.applet.ID, &service.EventRequest{
		ActivityID: &act,
		StartTime:  "09:00",
		EndTime:    "11:00",
		Periodicity: service.PeriodicityRequest{
			Type:      entity.PeriodicityDaily,
			StartDate: strp("2030-01-01"),
			EndDate:   strp("2030-12-31"),
		},
	})
	require.NoError(t, err)

	got, err := sched.UpcomingEvents(ctx, f.owner.ID, service.DeviceInfo{}, day("2024-03-11"), day("2024-03-16"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Events, 1)
	assert.Equal(t, service.AvailabilityAlways, got[0].Events[0].AvailabilityType)

	got, err = sched.UpcomingEvents(ctx, f.owner.ID, service.DeviceInfo{}, day("2029-12-30"), day("2030-01-02"))
	require.NoError(t, err)
	assert.Len(t, got[0].Events, 2)
}

func TestScheduleChangeNotifiesRespondents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub := &push.Subscriber{ID: "conn-1", UserID: f.owner.ID, Events: make(chan push.Event, 4)}
	f.env.Hub.Register(sub)
	defer f.env.Hub.Unregister(sub.ID)

	_, err := f.env.Services.Schedule.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, push.KindScheduleUpdated, ev.EventType)
		assert.Contains(t, ev.Data, f.applet.ID)
	case <-time.After(time.Second):
		t.Fatal("no schedule notification received")
	}
}

func TestExportHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.env.Services.Schedule.Create(ctx, f.owner.ID, f.applet.ID, weeklyRequest(f.activityID()))
	require.NoError(t, err)

	export, err := f.env.Services.Schedule.ExportHistory(ctx, f.owner.ID, f.applet.ID)
	require.NoError(t, err)
	assert.Contains(t, export.FileName, ".xlsx")
	assert.NotEmpty(t, export.Data)
	assert.Empty(t, export.URL, "no object storage configured")

	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	_, err = f.env.Services.Schedule.ExportHistory(ctx, resp.ID, f.applet.ID)
	assertCode(t, err, "ACCESS_DENIED")
}
