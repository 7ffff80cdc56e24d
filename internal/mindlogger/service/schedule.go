package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/repository"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/database"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventRequest struct {
	ActivityID           *string             `json:"activity_id"`
	FlowID               *string             `json:"flow_id"`
	RespondentID         *string             `json:"respondent_id"`
	StartTime            string              `json:"start_time"`
	EndTime              string              `json:"end_time"`
	AccessBeforeSchedule bool                `json:"access_before_schedule"`
	OneTimeCompletion    bool                `json:"one_time_completion"`
	Timer                string              `json:"timer"`
	TimerType            string              `json:"timer_type"`
	Periodicity          PeriodicityRequest  `json:"periodicity" binding:"required"`
	Notification         *NotificationConfig `json:"notification"`
}

// PeriodicityRequest dates are "YYYY-MM-DD".
type PeriodicityRequest struct {
	Type         string  `json:"type" binding:"required"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	SelectedDate *string `json:"selected_date"`
}

type NotificationConfig struct {
	Notifications []NotificationSetting `json:"notifications"`
	Reminder      *ReminderSetting      `json:"reminder"`
}

// NotificationSetting times are "HH:MM" or "HH:MM:SS".
type NotificationSetting struct {
	TriggerType string  `json:"trigger_type" binding:"required"`
	AtTime      *string `json:"at_time"`
	FromTime    *string `json:"from_time"`
	ToTime      *string `json:"to_time"`
}

type ReminderSetting struct {
	ActivityIncomplete int    `json:"activity_incomplete"`
	ReminderTime       string `json:"reminder_time" binding:"required"`
}

// entityRef names the activity or flow an event schedules.
type entityRef struct {
	ActivityID *string
	FlowID     *string
}

func (r entityRef) ID() string {
	if r.ActivityID != nil {
		return *r.ActivityID
	}
	if r.FlowID != nil {
		return *r.FlowID
	}
	return ""
}

func entityRefs(activities []entity.Activity, flows []entity.Flow) []entityRef {
	refs := make([]entityRef, 0, len(activities)+len(flows))
	for i := range activities {
		id := activities[i].ID
		refs = append(refs, entityRef{ActivityID: &id})
	}
	for i := range flows {
		id := flows[i].ID
		refs = append(refs, entityRef{FlowID: &id})
	}
	return refs
}

// ScheduleService is the schedule engine: events per activity or flow,
// default for all respondents or individual for one.
type ScheduleService struct {
	repos    *repository.Repositories
	access   *AccessService
	notifier push.Notifier
	storage  *storage.Storage
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduleService(d Deps, access *AccessService) *ScheduleService {
	return &ScheduleService{
		repos:    d.Repos,
		access:   access,
		notifier: d.Notifier,
		storage:  d.Storage,
		logger:   d.Logger,
		now:      d.Now,
	}
}

// ========== Parsing and validation ==========

func parseClock(s string) (datatypes.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	vals := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		vals[i] = n
	}
	return datatypes.NewTime(vals[0], vals[1], vals[2], 0), nil
}

func parseDate(s *string) (*datatypes.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", *s)
	}
	d := datatypes.Date(t)
	return &d, nil
}

// inWindow reports whether t lies in [start, end], wrapping past midnight
// when start is after end.
func inWindow(t, start, end datatypes.Time) bool {
	if start <= end {
		return t >= start && t <= end
	}
	return t >= start || t <= end
}

var (
	dayStart = datatypes.NewTime(0, 0, 0, 0)
	dayEnd   = datatypes.NewTime(23, 59, 0, 0)
)

// buildEvent validates a request against the applet and returns the event
// it describes, without id or version.
func (s *ScheduleService) buildEvent(ctx context.Context, appletID string, req *EventRequest) (*entity.Event, error) {
	if (req.ActivityID == nil) == (req.FlowID == nil) {
		return nil, apperr.Validation("EVENT_ENTITY_REQUIRED", "exactly one of activity_id and flow_id is required")
	}
	if req.ActivityID != nil {
		a, err := s.repos.Applet.FindActivity(ctx, *req.ActivityID)
		if err != nil || a.AppletID != appletID {
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			return nil, apperr.ActivityNotFound(*req.ActivityID)
		}
	} else {
		f, err := s.repos.Applet.FindFlow(ctx, *req.FlowID)
		if err != nil || f.AppletID != appletID {
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			return nil, apperr.FlowNotFound(*req.FlowID)
		}
	}
	if req.RespondentID != nil {
		if _, err := s.repos.Access.Find(ctx, *req.RespondentID, appletID, entity.RoleRespondent); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.AccessDenied("RESPONDENT_REQUIRED", "user %s is not a respondent of applet %s", *req.RespondentID, appletID)
			}
			return nil, err
		}
	}

	p, err := buildPeriodicity(req.Periodicity)
	if err != nil {
		return nil, err
	}

	ev := &entity.Event{EventAttrs: entity.EventAttrs{
		AppletID:             appletID,
		ActivityID:           req.ActivityID,
		FlowID:               req.FlowID,
		UserID:               req.RespondentID,
		AccessBeforeSchedule: req.AccessBeforeSchedule,
		OneTimeCompletion:    req.OneTimeCompletion,
		TimerType:            entity.TimerNotSet,
		Periodicity:          p,
	}}

	if p.Type == entity.PeriodicityAlways {
		ev.StartTime, ev.EndTime = dayStart, dayEnd
		ev.AccessBeforeSchedule = false
	} else {
		if ev.StartTime, err = parseClock(req.StartTime); err != nil {
			return nil, apperr.Validation("INVALID_EVENT_TIME", "start_time: %v", err)
		}
		if ev.EndTime, err = parseClock(req.EndTime); err != nil {
			return nil, apperr.Validation("INVALID_EVENT_TIME", "end_time: %v", err)
		}
		if ev.StartTime == ev.EndTime {
			return nil, apperr.Validation("INVALID_EVENT_TIME", "start_time and end_time must differ")
		}
		ev.OneTimeCompletion = false
	}

	switch req.TimerType {
	case "", entity.TimerNotSet:
	case entity.TimerTimer, entity.TimerIdle:
		t, err := parseClock(req.Timer)
		if err != nil || t == 0 {
			return nil, apperr.Validation("INVALID_TIMER", "timer must be a positive duration")
		}
		ev.TimerType = req.TimerType
		ev.Timer = int64(time.Duration(t) / time.Second)
	default:
		return nil, apperr.Validation("INVALID_TIMER", "unknown timer type %q", req.TimerType)
	}

	if req.Notification != nil {
		if err := s.buildNotifications(ev, req.Notification); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

func buildPeriodicity(req PeriodicityRequest) (entity.Periodicity, error) {
	p := entity.Periodicity{Type: req.Type}
	var err error
	if p.StartDate, err = parseDate(req.StartDate); err != nil {
		return p, apperr.InvalidPeriodicity(err.Error())
	}
	if p.EndDate, err = parseDate(req.EndDate); err != nil {
		return p, apperr.InvalidPeriodicity(err.Error())
	}
	if p.SelectedDate, err = parseDate(req.SelectedDate); err != nil {
		return p, apperr.InvalidPeriodicity(err.Error())
	}

	switch p.Type {
	case entity.PeriodicityAlways:
		if p.StartDate != nil || p.EndDate != nil || p.SelectedDate != nil {
			return p, apperr.InvalidPeriodicity("ALWAYS events take no dates")
		}
		return p, nil
	case entity.PeriodicityOnce:
		if p.SelectedDate == nil {
			return p, apperr.InvalidPeriodicity("ONCE events need selected_date")
		}
		return p, nil
	case entity.PeriodicityWeekly, entity.PeriodicityMonthly:
		if p.SelectedDate == nil {
			return p, apperr.InvalidPeriodicity(p.Type + " events need selected_date")
		}
		if p.StartDate == nil {
			sel := *p.SelectedDate
			p.StartDate = &sel
		}
	case entity.PeriodicityDaily, entity.PeriodicityWeekdays:
	default:
		return p, apperr.InvalidPeriodicity(fmt.Sprintf("unknown periodicity %q", p.Type))
	}

	if p.StartDate == nil || p.EndDate == nil {
		return p, apperr.InvalidPeriodicity(p.Type + " events need start_date and end_date")
	}
	if time.Time(*p.StartDate).After(time.Time(*p.EndDate)) {
		return p, apperr.InvalidPeriodicity("start_date is after end_date")
	}
	return p, nil
}

func (s *ScheduleService) buildNotifications(ev *entity.Event, cfg *NotificationConfig) error {
	for i, n := range cfg.Notifications {
		row := entity.Notification{ID: uuid.New().String(), TriggerType: n.TriggerType, Order: i + 1}
		switch n.TriggerType {
		case entity.TriggerFixed:
			if n.AtTime == nil {
				return apperr.Validation("INVALID_NOTIFICATION", "FIXED notifications need at_time")
			}
			at, err := parseClock(*n.AtTime)
			if err != nil {
				return apperr.Validation("INVALID_NOTIFICATION", "%v", err)
			}
			if !inWindow(at, ev.StartTime, ev.EndTime) {
				return apperr.NotificationOutsideWindow(fmt.Sprintf("notification at %s is outside the event window", *n.AtTime))
			}
			row.AtTime = &at
		case entity.TriggerRandom:
			if n.FromTime == nil || n.ToTime == nil {
				return apperr.Validation("INVALID_NOTIFICATION", "RANDOM notifications need from_time and to_time")
			}
			from, err := parseClock(*n.FromTime)
			if err != nil {
				return apperr.Validation("INVALID_NOTIFICATION", "%v", err)
			}
			to, err := parseClock(*n.ToTime)
			if err != nil {
				return apperr.Validation("INVALID_NOTIFICATION", "%v", err)
			}
			if !inWindow(from, ev.StartTime, ev.EndTime) || !inWindow(to, ev.StartTime, ev.EndTime) {
				return apperr.NotificationOutsideWindow("random notification range is outside the event window")
			}
			row.FromTime, row.ToTime = &from, &to
		default:
			return apperr.Validation("INVALID_NOTIFICATION", "unknown trigger type %q", n.TriggerType)
		}
		ev.Notifications = append(ev.Notifications, row)
	}
	if r := cfg.Reminder; r != nil {
		at, err := parseClock(r.ReminderTime)
		if err != nil {
			return apperr.Validation("INVALID_REMINDER", "%v", err)
		}
		if !inWindow(at, ev.StartTime, ev.EndTime) {
			return apperr.NotificationOutsideWindow(fmt.Sprintf("reminder at %s is outside the event window", r.ReminderTime))
		}
		if r.ActivityIncomplete < 0 {
			return apperr.Validation("INVALID_REMINDER", "activity_incomplete cannot be negative")
		}
		ev.Reminder = &entity.Reminder{ID: uuid.New().String(), ActivityIncomplete: r.ActivityIncomplete, ReminderTime: at}
	}
	return nil
}

// ========== Persistence helpers (run inside the caller's transaction) ==========

// nextEventVersion returns "YYYYMMDD-n", n counting the event's versions of
// that day from 1.
func (s *ScheduleService) nextEventVersion(ctx context.Context, repos *repository.Repositories, eventID string) (string, error) {
	prefix := s.now().Format("20060102") + "-"
	n, err := repos.Event.CountVersionsWithPrefix(ctx, eventID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", prefix, n+1), nil
}

func (s *ScheduleService) writeHistory(ctx context.Context, repos *repository.Repositories, ev *entity.Event, actorID string, deleted bool) error {
	var updater *string
	if actorID != "" {
		updater = &actorID
	}
	return repos.Event.CreateHistory(ctx, &entity.EventHistory{
		IDVersion:     ev.ID + "_" + ev.Version,
		ID:            ev.ID,
		EventAttrs:    ev.EventAttrs,
		UserIDUpdater: updater,
		IsDeleted:     deleted,
	})
}

func (s *ScheduleService) insertEvent(ctx context.Context, repos *repository.Repositories, ev *entity.Event, actorID string) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	for i := range ev.Notifications {
		ev.Notifications[i].EventID = ev.ID
	}
	if ev.Reminder != nil {
		ev.Reminder.EventID = ev.ID
	}
	var err error
	if ev.Version, err = s.nextEventVersion(ctx, repos, ev.ID); err != nil {
		return err
	}
	if err := repos.Event.Create(ctx, ev); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return s.writeHistory(ctx, repos, ev, actorID, false)
}

// deleteEvents soft-deletes events and records a deleted history version
// for each.
func (s *ScheduleService) deleteEvents(ctx context.Context, repos *repository.Repositories, events []entity.Event, actorID string) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, 0, len(events))
	for i := range events {
		ev := events[i]
		v, err := s.nextEventVersion(ctx, repos, ev.ID)
		if err != nil {
			return err
		}
		ev.Version = v
		if err := s.writeHistory(ctx, repos, &ev, actorID, true); err != nil {
			return err
		}
		ids = append(ids, ev.ID)
	}
	return repos.Event.SoftDelete(ctx, ids)
}

// createDefault adds the always-available event of an activity or flow,
// for all respondents when userID is nil.
func (s *ScheduleService) createDefault(ctx context.Context, repos *repository.Repositories, appletID string, ref entityRef, userID *string, actorID string) (*entity.Event, error) {
	ev := &entity.Event{EventAttrs: entity.EventAttrs{
		AppletID:    appletID,
		ActivityID:  ref.ActivityID,
		FlowID:      ref.FlowID,
		UserID:      userID,
		StartTime:   dayStart,
		EndTime:     dayEnd,
		TimerType:   entity.TimerNotSet,
		Periodicity: entity.Periodicity{Type: entity.PeriodicityAlways},
	}}
	if err := s.insertEvent(ctx, repos, ev, actorID); err != nil {
		return nil, err
	}
	return ev, nil
}

// sameScope keeps events of the same audience: defaults when userID is nil,
// else the user's individual events.
func sameScope(events []entity.Event, userID *string) []entity.Event {
	out := make([]entity.Event, 0, len(events))
	for _, e := range events {
		if (userID == nil && e.UserID == nil) || (userID != nil && e.UserID != nil && *e.UserID == *userID) {
			out = append(out, e)
		}
	}
	return out
}

// syncEntities reconciles schedules after an applet update: events of
// removed activities and flows go away, new ones get default events, plus
// one individual event per user that already has an individual schedule.
func (s *ScheduleService) syncEntities(ctx context.Context, repos *repository.Repositories, appletID string, old, next []entityRef, actorID string) error {
	oldIDs := make(map[string]bool, len(old))
	for _, r := range old {
		oldIDs[r.ID()] = true
	}
	nextIDs := make(map[string]bool, len(next))
	for _, r := range next {
		nextIDs[r.ID()] = true
	}

	for _, r := range old {
		if nextIDs[r.ID()] {
			continue
		}
		events, err := repos.Event.ListByEntity(ctx, appletID, r.ID(), nil)
		if err != nil {
			return err
		}
		if err := s.deleteEvents(ctx, repos, events, actorID); err != nil {
			return err
		}
	}

	users, err := repos.Event.ListIndividualUserIDs(ctx, appletID)
	if err != nil {
		return err
	}
	for _, r := range next {
		if oldIDs[r.ID()] {
			continue
		}
		if _, err := s.createDefault(ctx, repos, appletID, r, nil, actorID); err != nil {
			return err
		}
		for i := range users {
			uid := users[i]
			if _, err := s.createDefault(ctx, repos, appletID, r, &uid, actorID); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteUserEvents removes a user's individual schedule of an applet.
func (s *ScheduleService) deleteUserEvents(ctx context.Context, repos *repository.Repositories, appletID, userID, actorID string) error {
	events, err := repos.Event.ListForUser(ctx, []string{appletID}, userID)
	if err != nil {
		return err
	}
	return s.deleteEvents(ctx, repos, sameScope(events, &userID), actorID)
}

// ========== Commands ==========

func (s *ScheduleService) requireApplet(ctx context.Context, userID, appletID string) error {
	if _, err := s.repos.Applet.FindByID(ctx, appletID); err != nil {
		return appletLookup(appletID, err)
	}
	_, err := s.access.Require(ctx, userID, appletID, ScheduleRoles...)
	return err
}

func (s *ScheduleService) findEvent(ctx context.Context, appletID, eventID string) (*entity.Event, error) {
	ev, err := s.repos.Event.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.EventNotFound(eventID)
		}
		return nil, err
	}
	if ev.AppletID != appletID {
		return nil, apperr.EventNotFound(eventID)
	}
	return ev, nil
}

// Create adds an event. An ALWAYS event supersedes every other event of the
// same activity or flow for the same audience.
func (s *ScheduleService) Create(ctx context.Context, actorID, appletID string, req *EventRequest) (*entity.Event, error) {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return nil, err
	}
	ev, err := s.buildEvent(ctx, appletID, req)
	if err != nil {
		return nil, err
	}
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if ev.Periodicity.Type == entity.PeriodicityAlways {
			existing, err := repos.Event.ListByEntity(ctx, appletID, ev.EntityID(), nil)
			if err != nil {
				return err
			}
			if err := s.deleteEvents(ctx, repos, sameScope(existing, ev.UserID), actorID); err != nil {
				return err
			}
		}
		return s.insertEvent(ctx, repos, ev, actorID)
	})
	if err != nil {
		return nil, err
	}
	s.notifySchedule(ctx, appletID, ev.UserID)
	return s.findEvent(ctx, appletID, ev.ID)
}

func (s *ScheduleService) Get(ctx context.Context, actorID, appletID, eventID string) (*entity.Event, error) {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return nil, err
	}
	return s.findEvent(ctx, appletID, eventID)
}

// List returns the applet's events; with respondentID only that user's
// individual events.
func (s *ScheduleService) List(ctx context.Context, actorID, appletID string, respondentID *string) ([]entity.Event, error) {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return nil, err
	}
	events, err := s.repos.Event.ListByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	if respondentID == nil {
		return events, nil
	}
	return sameScope(events, respondentID), nil
}

// Update rewrites an event in place under a new event version.
func (s *ScheduleService) Update(ctx context.Context, actorID, appletID, eventID string, req *EventRequest) (*entity.Event, error) {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return nil, err
	}
	cur, err := s.findEvent(ctx, appletID, eventID)
	if err != nil {
		return nil, err
	}
	req.RespondentID = cur.UserID
	ev, err := s.buildEvent(ctx, appletID, req)
	if err != nil {
		return nil, err
	}
	ev.ID = cur.ID
	ev.CreatedAt = cur.CreatedAt
	for i := range ev.Notifications {
		ev.Notifications[i].EventID = ev.ID
	}
	if ev.Reminder != nil {
		ev.Reminder.EventID = ev.ID
	}

	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if ev.Periodicity.Type == entity.PeriodicityAlways {
			existing, err := repos.Event.ListByEntity(ctx, appletID, ev.EntityID(), nil)
			if err != nil {
				return err
			}
			others := make([]entity.Event, 0, len(existing))
			for _, e := range sameScope(existing, ev.UserID) {
				if e.ID != ev.ID {
					others = append(others, e)
				}
			}
			if err := s.deleteEvents(ctx, repos, others, actorID); err != nil {
				return err
			}
		}
		if ev.Version, err = s.nextEventVersion(ctx, repos, ev.ID); err != nil {
			return err
		}
		if err := repos.Event.Save(ctx, ev); err != nil {
			return fmt.Errorf("save event: %w", err)
		}
		return s.writeHistory(ctx, repos, ev, actorID, false)
	})
	if err != nil {
		return nil, err
	}
	s.notifySchedule(ctx, appletID, ev.UserID)
	return s.findEvent(ctx, appletID, ev.ID)
}

// Delete removes an event. When no default event is left for its activity
// or flow, a default one is created again.
func (s *ScheduleService) Delete(ctx context.Context, actorID, appletID, eventID string) error {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return err
	}
	ev, err := s.findEvent(ctx, appletID, eventID)
	if err != nil {
		return err
	}
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		if err := s.deleteEvents(ctx, repos, []entity.Event{*ev}, actorID); err != nil {
			return err
		}
		return s.ensureDefault(ctx, repos, appletID, entityRef{ActivityID: ev.ActivityID, FlowID: ev.FlowID}, actorID)
	})
	if err != nil {
		return err
	}
	s.notifySchedule(ctx, appletID, ev.UserID)
	return nil
}

func (s *ScheduleService) ensureDefault(ctx context.Context, repos *repository.Repositories, appletID string, ref entityRef, actorID string) error {
	n, err := repos.Event.CountByEntity(ctx, appletID, ref.ID(), nil)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.createDefault(ctx, repos, appletID, ref, nil, actorID)
	return err
}

// DeleteAll drops every default event of the applet and recreates the
// always-available defaults.
func (s *ScheduleService) DeleteAll(ctx context.Context, actorID, appletID string) error {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return err
	}
	acts, err := s.repos.Applet.ListActivities(ctx, appletID)
	if err != nil {
		return err
	}
	flows, err := s.repos.Applet.ListFlows(ctx, appletID)
	if err != nil {
		return err
	}
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		events, err := repos.Event.ListByApplet(ctx, appletID)
		if err != nil {
			return err
		}
		if err := s.deleteEvents(ctx, repos, sameScope(events, nil), actorID); err != nil {
			return err
		}
		for _, ref := range entityRefs(acts, flows) {
			if _, err := s.createDefault(ctx, repos, appletID, ref, nil, actorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifySchedule(ctx, appletID, nil)
	return nil
}

// DeleteByUser drops a respondent's individual schedule; the defaults apply
// to them again.
func (s *ScheduleService) DeleteByUser(ctx context.Context, actorID, appletID, respondentID string) error {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return err
	}
	err := database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		return s.deleteUserEvents(ctx, s.repos.WithTx(tx), appletID, respondentID, actorID)
	})
	if err != nil {
		return err
	}
	s.notifySchedule(ctx, appletID, &respondentID)
	return nil
}

// CreateIndividual starts an individual schedule for a respondent by copying
// the applet's default events.
func (s *ScheduleService) CreateIndividual(ctx context.Context, actorID, appletID, respondentID string) ([]entity.Event, error) {
	if err := s.requireApplet(ctx, actorID, appletID); err != nil {
		return nil, err
	}
	if _, err := s.repos.Access.Find(ctx, respondentID, appletID, entity.RoleRespondent); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.AccessDenied("RESPONDENT_REQUIRED", "user %s is not a respondent of applet %s", respondentID, appletID)
		}
		return nil, err
	}
	events, err := s.repos.Event.ListByApplet(ctx, appletID)
	if err != nil {
		return nil, err
	}
	if len(sameScope(events, &respondentID)) > 0 {
		return nil, apperr.Conflict("INDIVIDUAL_SCHEDULE_EXISTS", "respondent already has an individual schedule")
	}

	var created []entity.Event
	err = database.Atomic(ctx, s.repos.DB(), func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)
		for _, d := range sameScope(events, nil) {
			ev := entity.Event{EventAttrs: d.EventAttrs}
			ev.UserID = &respondentID
			for _, n := range d.Notifications {
				n.ID = uuid.New().String()
				n.CreatedAt = time.Time{}
				ev.Notifications = append(ev.Notifications, n)
			}
			if d.Reminder != nil {
				r := *d.Reminder
				r.ID = uuid.New().String()
				r.CreatedAt = time.Time{}
				ev.Reminder = &r
			}
			if err := s.insertEvent(ctx, repos, &ev, actorID); err != nil {
				return err
			}
			created = append(created, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifySchedule(ctx, appletID, &respondentID)
	return created, nil
}

func (s *ScheduleService) notifySchedule(ctx context.Context, appletID string, userID *string) {
	if s.notifier == nil {
		return
	}
	var users []string
	if userID != nil {
		users = []string{*userID}
	} else {
		ids, err := s.access.RespondentIDs(ctx, appletID)
		if err != nil {
			s.logger.Warn("list respondents for notification", zap.String("applet_id", appletID), zap.Error(err))
			return
		}
		users = ids
	}
	_ = s.notifier.Notify(ctx, push.Notification{
		AppletID: appletID,
		Title:    "Schedule updated",
		Body:     "Your schedule was updated",
		Kind:     push.KindScheduleUpdated,
		UserIDs:  users,
	})
}
