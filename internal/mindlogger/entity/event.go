package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Periodicity types
const (
	PeriodicityAlways   = "ALWAYS"
	PeriodicityOnce     = "ONCE"
	PeriodicityDaily    = "DAILY"
	PeriodicityWeekly   = "WEEKLY"
	PeriodicityWeekdays = "WEEKDAYS"
	PeriodicityMonthly  = "MONTHLY"
)

// Timer types
const (
	TimerNotSet = "NOT_SET"
	TimerTimer  = "TIMER"
	TimerIdle   = "IDLE"
)

// Notification trigger types
const (
	TriggerFixed  = "FIXED"
	TriggerRandom = "RANDOM"
)

type Periodicity struct {
	Type         string          `json:"type" gorm:"size:16;not null"`
	StartDate    *datatypes.Date `json:"start_date,omitempty"`
	EndDate      *datatypes.Date `json:"end_date,omitempty"`
	SelectedDate *datatypes.Date `json:"selected_date,omitempty"`
}

// EventAttrs are shared by events and event_histories.
type EventAttrs struct {
	AppletID             string         `json:"applet_id" gorm:"size:36;not null;index"`
	ActivityID           *string        `json:"activity_id,omitempty" gorm:"size:36;index"`
	FlowID               *string        `json:"flow_id,omitempty" gorm:"size:36;index"`
	UserID               *string        `json:"user_id,omitempty" gorm:"size:36;index"`
	StartTime            datatypes.Time `json:"start_time"`
	EndTime              datatypes.Time `json:"end_time"`
	AccessBeforeSchedule bool           `json:"access_before_schedule"`
	OneTimeCompletion    bool           `json:"one_time_completion"`
	Timer                int64          `json:"timer"` // seconds
	TimerType            string         `json:"timer_type" gorm:"size:16;not null;default:NOT_SET"`
	Periodicity          Periodicity    `json:"periodicity" gorm:"embedded;embeddedPrefix:periodicity_"`
	Version              string         `json:"version" gorm:"size:16"`
}

// EntityID returns the activity or flow the event schedules.
func (a EventAttrs) EntityID() string {
	if a.ActivityID != nil {
		return *a.ActivityID
	}
	if a.FlowID != nil {
		return *a.FlowID
	}
	return ""
}

// CrossDay reports whether the availability window wraps past midnight.
func (a EventAttrs) CrossDay() bool {
	return time.Duration(a.StartTime) > time.Duration(a.EndTime)
}

// Event is a schedule entry. A nil UserID makes it the default event for all
// respondents of the applet.
type Event struct {
	ID string `json:"id" gorm:"primaryKey;size:36"`
	EventAttrs
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Notifications []Notification `json:"notifications,omitempty" gorm:"foreignKey:EventID"`
	Reminder      *Reminder      `json:"reminder,omitempty" gorm:"foreignKey:EventID"`
}

func (Event) TableName() string {
	return "events"
}

type Notification struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	EventID     string          `json:"event_id" gorm:"size:36;not null;index"`
	TriggerType string          `json:"trigger_type" gorm:"size:16;not null"`
	AtTime      *datatypes.Time `json:"at_time,omitempty"`
	FromTime    *datatypes.Time `json:"from_time,omitempty"`
	ToTime      *datatypes.Time `json:"to_time,omitempty"`
	Order       int             `json:"order"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

type Reminder struct {
	ID                 string         `json:"id" gorm:"primaryKey;size:36"`
	EventID            string         `json:"event_id" gorm:"size:36;not null;uniqueIndex"`
	ActivityIncomplete int            `json:"activity_incomplete"`
	ReminderTime       datatypes.Time `json:"reminder_time"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (Reminder) TableName() string {
	return "reminders"
}

// EventHistory is an immutable snapshot of an event, keyed "{event_id}_{version}".
type EventHistory struct {
	IDVersion string `json:"id_version" gorm:"primaryKey;size:64"`
	ID        string `json:"id" gorm:"size:36;not null;index"`
	EventAttrs
	UserIDUpdater *string   `json:"updated_by,omitempty" gorm:"column:updated_by;size:36"`
	IsDeleted     bool      `json:"is_deleted"`
	CreatedAt     time.Time `json:"created_at"`
}

func (EventHistory) TableName() string {
	return "event_histories"
}

// UserDevice is the latest known device of a respondent, used as push target.
type UserDevice struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	UserID     string    `json:"user_id" gorm:"size:36;not null;uniqueIndex:uq_user_device"`
	DeviceID   string    `json:"device_id" gorm:"size:256;not null;uniqueIndex:uq_user_device"`
	OSName     string    `json:"os_name" gorm:"size:32"`
	OSVersion  string    `json:"os_version" gorm:"size:32"`
	AppVersion string    `json:"app_version" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (UserDevice) TableName() string {
	return "user_devices"
}

// UserDeviceEventHistory records which event version was served to a device.
type UserDeviceEventHistory struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"user_id" gorm:"size:36;not null;index"`
	DeviceID     string    `json:"device_id" gorm:"size:256;not null"`
	EventID      string    `json:"event_id" gorm:"size:36;not null;index"`
	EventVersion string    `json:"event_version" gorm:"size:16;not null"`
	OSName       string    `json:"os_name" gorm:"size:32"`
	OSVersion    string    `json:"os_version" gorm:"size:32"`
	AppVersion   string    `json:"app_version" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
}

func (UserDeviceEventHistory) TableName() string {
	return "user_device_events_history"
}
