package repository

import (
	"context"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Notifications", func(db *gorm.DB) *gorm.DB { return db.Order(byOrder()) }).
		Preload("Reminder")
}

func (r *EventRepository) Create(ctx context.Context, event *entity.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// Save updates the event row and replaces its notifications and reminder.
func (r *EventRepository) Save(ctx context.Context, event *entity.Event) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id = ?", event.ID).Delete(&entity.Notification{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id = ?", event.ID).Delete(&entity.Reminder{}).Error; err != nil {
		return err
	}
	return db.Session(&gorm.Session{FullSaveAssociations: true}).Save(event).Error
}

func (r *EventRepository) FindByID(ctx context.Context, id string) (*entity.Event, error) {
	var event entity.Event
	if err := r.withChildren(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &event, nil
}

func (r *EventRepository) ListByApplet(ctx context.Context, appletID string) ([]entity.Event, error) {
	var events []entity.Event
	err := r.withChildren(ctx).
		Where("applet_id = ?", appletID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// ListByEntity returns the events of one activity or flow. A nil userID
// selects every event; otherwise only that user's individual events.
func (r *EventRepository) ListByEntity(ctx context.Context, appletID, entityID string, userID *string) ([]entity.Event, error) {
	var events []entity.Event
	q := r.withChildren(ctx).
		Where("applet_id = ?", appletID).
		Where("(activity_id = ? OR flow_id = ?)", entityID, entityID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	err := q.Order("created_at ASC").Find(&events).Error
	return events, err
}

// ListForUser returns the user's individual events plus the default events
// of the given applets.
func (r *EventRepository) ListForUser(ctx context.Context, appletIDs []string, userID string) ([]entity.Event, error) {
	var events []entity.Event
	if len(appletIDs) == 0 {
		return events, nil
	}
	err := r.withChildren(ctx).
		Where("applet_id IN ?", appletIDs).
		Where("(user_id = ? OR user_id IS NULL)", userID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// CountByEntity counts live events of an activity or flow.
func (r *EventRepository) CountByEntity(ctx context.Context, appletID, entityID string, userID *string) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&entity.Event{}).
		Where("applet_id = ?", appletID).
		Where("(activity_id = ? OR flow_id = ?)", entityID, entityID)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}
	err := q.Count(&n).Error
	return n, err
}

// ListIndividualUserIDs returns the users with individual events in an applet.
func (r *EventRepository) ListIndividualUserIDs(ctx context.Context, appletID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.Event{}).
		Where("applet_id = ? AND user_id IS NOT NULL", appletID).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

// SoftDelete marks the events deleted and drops their notifications and reminders.
func (r *EventRepository) SoftDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id IN ?", ids).Delete(&entity.Notification{}).Error; err != nil {
		return err
	}
	if err := db.Where("event_id IN ?", ids).Delete(&entity.Reminder{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&entity.Event{}).Error
}

// ========== History ==========

func (r *EventRepository) CreateHistory(ctx context.Context, h *entity.EventHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// CountVersionsWithPrefix counts history rows of an event whose version
// starts with the given date prefix.
func (r *EventRepository) CountVersionsWithPrefix(ctx context.Context, eventID, prefix string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&entity.EventHistory{}).
		Where("id = ? AND version LIKE ?", eventID, prefix+"%").
		Count(&n).Error
	return n, err
}

func (r *EventRepository) ListHistory(ctx context.Context, appletID string) ([]entity.EventHistory, error) {
	var hs []entity.EventHistory
	err := r.db.WithContext(ctx).
		Where("applet_id = ?", appletID).
		Order("created_at ASC").
		Find(&hs).Error
	return hs, err
}
