package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Subject tags
const (
	SubjectTagChild   = "Child"
	SubjectTagParent  = "Parent"
	SubjectTagTeacher = "Teacher"
	SubjectTagTeam    = "Team"
)

// Subject is a participant record inside an applet. UserID is nil for
// limited accounts.
type Subject struct {
	ID           string         `json:"id" gorm:"primaryKey;size:36"`
	AppletID     string         `json:"applet_id" gorm:"size:36;not null;index;uniqueIndex:uq_subject_secret,where:deleted_at IS NULL"`
	UserID       *string        `json:"user_id,omitempty" gorm:"size:36;index"`
	CreatorID    *string        `json:"creator_id,omitempty" gorm:"size:36"`
	Email        *string        `json:"email,omitempty" gorm:"size:256"`
	FirstName    string         `json:"first_name" gorm:"size:128"`
	LastName     string         `json:"last_name" gorm:"size:128"`
	Nickname     *string        `json:"nickname,omitempty" gorm:"size:128"`
	SecretUserID string         `json:"secret_user_id" gorm:"size:128;not null;uniqueIndex:uq_subject_secret,where:deleted_at IS NULL"`
	Tag          *string        `json:"tag,omitempty" gorm:"size:16"`
	Language     string         `json:"language" gorm:"size:8;default:en"`
	Meta         datatypes.JSON `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Subject) TableName() string {
	return "subjects"
}

// Relations
const (
	RelationTakeNow = "take-now"
	RelationParent  = "parent"
	RelationTeacher = "teacher"
	RelationSelf    = "self"
	RelationOther   = "other"
)

// RelationMeta carries the expiry of take-now relations.
type RelationMeta struct {
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type SubjectRelation struct {
	ID              string                           `json:"id" gorm:"primaryKey;size:36"`
	SourceSubjectID string                           `json:"source_subject_id" gorm:"size:36;not null;uniqueIndex:uq_subject_relation"`
	TargetSubjectID string                           `json:"target_subject_id" gorm:"size:36;not null;uniqueIndex:uq_subject_relation"`
	Relation        string                           `json:"relation" gorm:"size:32;not null"`
	Meta            datatypes.JSONType[RelationMeta] `json:"meta"`
	CreatedAt       time.Time                        `json:"created_at"`
	UpdatedAt       time.Time                        `json:"updated_at"`
}

func (SubjectRelation) TableName() string {
	return "subject_relations"
}

// Expired reports whether a time-boxed relation no longer authorizes.
func (r SubjectRelation) Expired(now time.Time) bool {
	exp := r.Meta.Data().ExpiresAt
	return exp != nil && !now.Before(*exp)
}
