package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Answer is one submitted activity. It lives in the applet's workspace
// database, which may be an arbitrary server.
type Answer struct {
	ID                string         `json:"id" gorm:"primaryKey;size:36"`
	SubmitID          string         `json:"submit_id" gorm:"size:36;not null;uniqueIndex:uq_answer_submit"`
	AppletID          string         `json:"applet_id" gorm:"size:36;not null;index"`
	Version           string         `json:"version" gorm:"size:32;not null"`
	AppletHistoryID   string         `json:"applet_history_id" gorm:"size:80;not null;index"`
	ActivityHistoryID string         `json:"activity_history_id" gorm:"size:80;not null;uniqueIndex:uq_answer_submit"`
	FlowHistoryID     *string        `json:"flow_history_id,omitempty" gorm:"size:80;index"`
	RespondentID      string         `json:"respondent_id" gorm:"size:36;not null;index"`
	TargetSubjectID   *string        `json:"target_subject_id,omitempty" gorm:"size:36;index"`
	SourceSubjectID   *string        `json:"source_subject_id,omitempty" gorm:"size:36;index"`
	IsFlowCompleted   bool           `json:"is_flow_completed"`
	Client            datatypes.JSON `json:"client"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`

	Items []AnswerItem `json:"items,omitempty" gorm:"foreignKey:AnswerID"`
}

func (Answer) TableName() string {
	return "answers"
}

// AnswerItem holds the encrypted payload of one answer. Assessments are rows
// with IsAssessment set, one per reviewer, under the reviewed answer.
type AnswerItem struct {
	ID                   string                      `json:"id" gorm:"primaryKey;size:36"`
	AnswerID             string                      `json:"answer_id" gorm:"size:36;not null;index"`
	RespondentID         string                      `json:"respondent_id" gorm:"size:36;not null;index"`
	Answer               string                      `json:"answer" gorm:"type:text"`
	Events               string                      `json:"events" gorm:"type:text"`
	UserPublicKey        string                      `json:"user_public_key" gorm:"type:text"`
	Identifier           *string                     `json:"identifier,omitempty" gorm:"type:text"`
	ItemIDs              datatypes.JSONSlice[string] `json:"item_ids"`
	IsAssessment         bool                        `json:"is_assessment" gorm:"index"`
	AssessmentActivityID *string                     `json:"assessment_activity_id,omitempty" gorm:"size:80"`
	StartTime            time.Time                   `json:"start_time"`
	EndTime              time.Time                   `json:"end_time"`
	ScheduledTime        *time.Time                  `json:"scheduled_time,omitempty"`
	ScheduledEventID     *string                     `json:"scheduled_event_id,omitempty" gorm:"size:36"`
	LocalEndDate         *datatypes.Date             `json:"local_end_date,omitempty"`
	LocalEndTime         *datatypes.Time             `json:"local_end_time,omitempty"`
	TZOffset             *int                        `json:"tz_offset,omitempty"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

func (AnswerItem) TableName() string {
	return "answers_items"
}

// AnswerNote is a reviewer note on an answer; Note is sealed at rest.
type AnswerNote struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	AnswerID   string         `json:"answer_id" gorm:"size:36;not null;index"`
	ActivityID string         `json:"activity_id" gorm:"size:36;not null"`
	UserID     string         `json:"user_id" gorm:"size:36;not null"`
	Note       string         `json:"note" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (AnswerNote) TableName() string {
	return "answer_notes"
}

// Alert is raised for a recipient when a submission declares an alert.
type Alert struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	UserID         string    `json:"user_id" gorm:"size:36;not null;index"`
	RespondentID   string    `json:"respondent_id" gorm:"size:36;not null"`
	SubjectID      *string   `json:"subject_id,omitempty" gorm:"size:36"`
	AppletID       string    `json:"applet_id" gorm:"size:36;not null;index"`
	ActivityID     string    `json:"activity_id" gorm:"size:36"`
	ActivityItemID string    `json:"activity_item_id" gorm:"size:36"`
	AnswerID       string    `json:"answer_id" gorm:"size:36;index"`
	AlertMessage   string    `json:"alert_message" gorm:"type:text"`
	Version        string    `json:"version" gorm:"size:32"`
	IsWatched      bool      `json:"is_watched"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}
