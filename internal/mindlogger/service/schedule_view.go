package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/storage"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Availability types of the mobile schedule.
const (
	AvailabilityAlways    = "AlwaysAvailable"
	AvailabilityScheduled = "ScheduledAccess"
)

type TimeDto struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func timeDto(t datatypes.Time) *TimeDto {
	d := time.Duration(t)
	return &TimeDto{Hours: int(d / time.Hour), Minutes: int(d % time.Hour / time.Minute)}
}

type AvailabilityDto struct {
	OneTimeCompletion         bool     `json:"oneTimeCompletion"`
	PeriodicityType           string   `json:"periodicityType"`
	TimeFrom                  *TimeDto `json:"timeFrom"`
	TimeTo                    *TimeDto `json:"timeTo"`
	AllowAccessBeforeFromTime bool     `json:"allowAccessBeforeFromTime"`
	StartDate                 *string  `json:"startDate"`
	EndDate                   *string  `json:"endDate"`
}

type TimersDto struct {
	Timer     *TimeDto `json:"timer"`
	IdleTimer *TimeDto `json:"idleTimer"`
}

type NotificationDto struct {
	TriggerType string   `json:"triggerType"`
	At          *TimeDto `json:"at"`
	From        *TimeDto `json:"from"`
	To          *TimeDto `json:"to"`
}

type ReminderDto struct {
	ActivityIncomplete int      `json:"activityIncomplete"`
	ReminderTime       *TimeDto `json:"reminderTime"`
}

type NotificationSettingsDto struct {
	Notifications []NotificationDto `json:"notifications"`
	Reminder      *ReminderDto      `json:"reminder"`
}

// ScheduleEventDto is the event as served to respondent devices.
type ScheduleEventDto struct {
	ID                   string                   `json:"id"`
	EntityID             string                   `json:"entityId"`
	Version              string                   `json:"version"`
	Availability         AvailabilityDto          `json:"availability"`
	SelectedDate         *string                  `json:"selectedDate"`
	Timers               TimersDto                `json:"timers"`
	AvailabilityType     string                   `json:"availabilityType"`
	NotificationSettings *NotificationSettingsDto `json:"notificationSettings"`
}

func dateString(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format("2006-01-02")
	return &s
}

// ToScheduleDto converts an event to its device representation.
func ToScheduleDto(e entity.Event) ScheduleEventDto {
	dto := ScheduleEventDto{
		ID:       e.ID,
		EntityID: e.EntityID(),
		Version:  e.Version,
		Availability: AvailabilityDto{
			OneTimeCompletion:         e.OneTimeCompletion,
			PeriodicityType:           e.Periodicity.Type,
			TimeFrom:                  timeDto(e.StartTime),
			TimeTo:                    timeDto(e.EndTime),
			AllowAccessBeforeFromTime: e.AccessBeforeSchedule,
			StartDate:                 dateString(e.Periodicity.StartDate),
			EndDate:                   dateString(e.Periodicity.EndDate),
		},
		SelectedDate:     dateString(e.Periodicity.SelectedDate),
		AvailabilityType: AvailabilityScheduled,
	}
	if e.Periodicity.Type == entity.PeriodicityAlways {
		dto.AvailabilityType = AvailabilityAlways
	}
	timer := timeDto(datatypes.Time(time.Duration(e.Timer) * time.Second))
	switch e.TimerType {
	case entity.TimerTimer:
		dto.Timers.Timer = timer
	case entity.TimerIdle:
		dto.Timers.IdleTimer = timer
	}

	if len(e.Notifications) > 0 || e.Reminder != nil {
		ns := &NotificationSettingsDto{Notifications: []NotificationDto{}}
		for _, n := range e.Notifications {
			nd := NotificationDto{TriggerType: n.TriggerType}
			if n.AtTime != nil {
				nd.At = timeDto(*n.AtTime)
			}
			if n.FromTime != nil {
				nd.From = timeDto(*n.FromTime)
			}
			if n.ToTime != nil {
				nd.To = timeDto(*n.ToTime)
			}
			ns.Notifications = append(ns.Notifications, nd)
		}
		if e.Reminder != nil {
			ns.Reminder = &ReminderDto{
				ActivityIncomplete: e.Reminder.ActivityIncomplete,
				ReminderTime:       timeDto(e.Reminder.ReminderTime),
			}
		}
		dto.NotificationSettings = ns
	}
	return dto
}

// effectiveEvents picks, per activity or flow, the user's individual events
// when any exist and the defaults otherwise. Events of hidden or removed
// entities are dropped.
func effectiveEvents(events []entity.Event, userID string, visible map[string]bool) []entity.Event {
	individual := make(map[string]bool)
	for _, e := range events {
		if e.UserID != nil && *e.UserID == userID {
			individual[e.EntityID()] = true
		}
	}
	out := make([]entity.Event, 0, len(events))
	for _, e := range events {
		id := e.EntityID()
		if visible != nil && !visible[id] {
			continue
		}
		if individual[id] == (e.UserID != nil) {
			out = append(out, e)
		}
	}
	return out
}

func (s *ScheduleService) visibleEntities(ctx context.Context, appletID string) (map[string]bool, error) {
	acts, err := s.repos.Applet.ListActivities(ctx, appletID)
	if err != nil {
		return nil, err
	}
	flows, err := s.repos.Applet.ListFlows(ctx, appletID)
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool, len(acts)+len(flows))
	for _, a := range acts {
		visible[a.ID] = !a.IsHidden
	}
	for _, f := range flows {
		visible[f.ID] = !f.IsHidden
	}
	return visible, nil
}

// UserEvents returns the respondent's effective schedule of one applet.
func (s *ScheduleService) UserEvents(ctx context.Context, userID, appletID string) ([]ScheduleEventDto, error) {
	if _, err := s.repos.Applet.FindByID(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, userID, appletID, entity.RoleRespondent); err != nil {
		return nil, err
	}
	events, err := s.repos.Event.ListForUser(ctx, []string{appletID}, userID)
	if err != nil {
		return nil, err
	}
	visible, err := s.visibleEntities(ctx, appletID)
	if err != nil {
		return nil, err
	}
	eff := effectiveEvents(events, userID, visible)
	out := make([]ScheduleEventDto, 0, len(eff))
	for _, e := range eff {
		out = append(out, ToScheduleDto(e))
	}
	return out, nil
}

// DeviceInfo identifies the device a schedule is served to.
type DeviceInfo struct {
	DeviceID   string
	OSName     string
	OSVersion  string
	AppVersion string
}

type AppletEvents struct {
	AppletID string             `json:"applet_id"`
	Events   []ScheduleEventDto `json:"events"`
}

// UpcomingEvents returns, for every applet the user responds to, the
// effective events available on some day of [from, to]. Served versions are
// recorded per device.
func (s *ScheduleService) UpcomingEvents(ctx context.Context, userID string, device DeviceInfo, from, to time.Time) ([]AppletEvents, error) {
	if to.Before(from) {
		from, to = to, from
	}
	appletIDs, err := s.repos.Access.AppletIDsByUser(ctx, userID, entity.RoleRespondent)
	if err != nil {
		return nil, err
	}
	applets, err := s.repos.Applet.FindByIDs(ctx, appletIDs)
	if err != nil {
		return nil, err
	}
	live := make([]string, 0, len(applets))
	for _, a := range applets {
		live = append(live, a.ID)
	}
	sort.Strings(live)

	events, err := s.repos.Event.ListForUser(ctx, live, userID)
	if err != nil {
		return nil, err
	}
	byApplet := make(map[string][]entity.Event)
	for _, e := range events {
		byApplet[e.AppletID] = append(byApplet[e.AppletID], e)
	}

	var served []entity.UserDeviceEventHistory
	out := make([]AppletEvents, 0, len(live))
	for _, id := range live {
		visible, err := s.visibleEntities(ctx, id)
		if err != nil {
			return nil, err
		}
		ae := AppletEvents{AppletID: id, Events: []ScheduleEventDto{}}
		for _, e := range effectiveEvents(byApplet[id], userID, visible) {
			if !IncludesRange(e.EventAttrs, from, to) {
				continue
			}
			ae.Events = append(ae.Events, ToScheduleDto(e))
			if device.DeviceID != "" {
				served = append(served, entity.UserDeviceEventHistory{
					ID:           uuid.New().String(),
					UserID:       userID,
					DeviceID:     device.DeviceID,
					EventID:      e.ID,
					EventVersion: e.Version,
					OSName:       device.OSName,
					OSVersion:    device.OSVersion,
					AppVersion:   device.AppVersion,
				})
			}
		}
		out = append(out, ae)
	}

	if device.DeviceID != "" {
		s.recordDevice(ctx, userID, device, served)
	}
	return out, nil
}

func (s *ScheduleService) recordDevice(ctx context.Context, userID string, device DeviceInfo, served []entity.UserDeviceEventHistory) {
	err := s.repos.Device.Upsert(ctx, &entity.UserDevice{
		ID:         uuid.New().String(),
		UserID:     userID,
		DeviceID:   device.DeviceID,
		OSName:     device.OSName,
		OSVersion:  device.OSVersion,
		AppVersion: device.AppVersion,
	})
	if err == nil {
		err = s.repos.Device.CreateEventHistory(ctx, served)
	}
	if err != nil {
		s.logger.Warn("record served events", zap.String("user_id", userID), zap.String("device_id", device.DeviceID), zap.Error(err))
	}
}

// ========== History export ==========

func clockString(t datatypes.Time) string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// HistoryExport is a rendered schedule history workbook. URL is set when
// the file was uploaded to object storage.
type HistoryExport struct {
	FileName string `json:"file_name"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
}

// ExportHistory renders the applet's event versions and the versions served
// to each device as an xlsx workbook.
func (s *ScheduleService) ExportHistory(ctx context.Context, actorID, appletID string) (*HistoryExport, error) {
	if _, err := s.repos.Applet.FindByIDUnscoped(ctx, appletID); err != nil {
		return nil, appletLookup(appletID, err)
	}
	if _, err := s.access.Require(ctx, actorID, appletID, AdminRoles...); err != nil {
		return nil, err
	}
	return s.BuildHistoryExport(ctx, appletID)
}

// BuildHistoryExport renders the workbook without permission checks.
func (s *ScheduleService) BuildHistoryExport(ctx context.Context, appletID string) (*HistoryExport, error) {
	hist, err := s.repos.Event.ListHistory(ctx, appletID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(hist))
	seen := make(map[string]bool)
	for _, h := range hist {
		if !seen[h.ID] {
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}
	served, err := s.repos.Device.ListEventHistory(ctx, ids)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const eventsSheet, devicesSheet = "Events", "Devices"
	if err := f.SetSheetName("Sheet1", eventsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(devicesSheet); err != nil {
		return nil, err
	}

	eventHeader := []interface{}{
		"Event ID", "Version", "Activity ID", "Flow ID", "User ID", "Periodicity",
		"Start Date", "End Date", "Selected Date", "Start Time", "End Time",
		"One Time Completion", "Timer Type", "Timer (s)", "Updated By", "Deleted", "Created At",
	}
	if err := f.SetSheetRow(eventsSheet, "A1", &eventHeader); err != nil {
		return nil, err
	}
	for i, h := range hist {
		row := []interface{}{
			h.ID, h.Version, strOrEmpty(h.ActivityID), strOrEmpty(h.FlowID), strOrEmpty(h.UserID),
			h.Periodicity.Type,
			strOrEmpty(dateString(h.Periodicity.StartDate)),
			strOrEmpty(dateString(h.Periodicity.EndDate)),
			strOrEmpty(dateString(h.Periodicity.SelectedDate)),
			clockString(h.StartTime), clockString(h.EndTime),
			h.OneTimeCompletion, h.TimerType, h.Timer,
			strOrEmpty(h.UserIDUpdater), h.IsDeleted, h.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(eventsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	deviceHeader := []interface{}{"User ID", "Device ID", "OS", "OS Version", "App Version", "Event ID", "Event Version", "Served At"}
	if err := f.SetSheetRow(devicesSheet, "A1", &deviceHeader); err != nil {
		return nil, err
	}
	for i, d := range served {
		row := []interface{}{
			d.UserID, d.DeviceID, d.OSName, d.OSVersion, d.AppVersion,
			d.EventID, d.EventVersion, d.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(devicesSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	now := s.now()
	out := &HistoryExport{
		FileName: fmt.Sprintf("schedule_history_%s_%s.xlsx", appletID, now.Format("20060102")),
		Data:     buf.Bytes(),
	}
	if s.storage != nil {
		key := storage.ExportKey("schedule-history", now, out.FileName)
		if _, err := s.storage.Put(ctx, key, out.Data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
			s.logger.Warn("upload schedule history", zap.String("applet_id", appletID), zap.Error(err))
			return out, nil
		}
		url, err := s.storage.PresignedURL(ctx, key, 24*time.Hour)
		if err != nil {
			s.logger.Warn("presign schedule history", zap.String("applet_id", appletID), zap.Error(err))
			return out, nil
		}
		out.URL = url
	}
	return out, nil
}
