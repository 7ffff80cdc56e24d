package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles
const (
	RoleOwner       = "owner"
	RoleManager     = "manager"
	RoleCoordinator = "coordinator"
	RoleEditor      = "editor"
	RoleReviewer    = "reviewer"
	RoleRespondent  = "respondent"
	RoleSuperAdmin  = "super_admin"
)

// AccessMeta scopes a reviewer to subjects; respondent rows carry their
// secret id and nickname.
type AccessMeta struct {
	Subjects     []string `json:"subjects,omitempty"`
	SecretUserID string   `json:"secretUserId,omitempty"`
	Nickname     string   `json:"nickname,omitempty"`
}

type UserAppletAccess struct {
	ID        string                         `json:"id" gorm:"primaryKey;size:36"`
	UserID    string                         `json:"user_id" gorm:"size:36;not null;uniqueIndex:uq_access,where:deleted_at IS NULL"`
	AppletID  string                         `json:"applet_id" gorm:"size:36;not null;index;uniqueIndex:uq_access,where:deleted_at IS NULL"`
	Role      string                         `json:"role" gorm:"size:32;not null;uniqueIndex:uq_access,where:deleted_at IS NULL"`
	OwnerID   string                         `json:"owner_id" gorm:"size:36;not null;index"`
	InvitorID string                         `json:"invitor_id" gorm:"size:36"`
	Meta      datatypes.JSONType[AccessMeta] `json:"meta"`
	CreatedAt time.Time                      `json:"created_at"`
	UpdatedAt time.Time                      `json:"updated_at"`
	DeletedAt gorm.DeletedAt                 `json:"-" gorm:"index"`
}

func (UserAppletAccess) TableName() string {
	return "user_applet_accesses"
}

// Invitation statuses
const (
	InvitationPending  = "pending"
	InvitationApproved = "approved"
	InvitationDeclined = "declined"
)

// InvitationMeta carries the subject a respondent invitation binds to and the
// subjects a reviewer invitation is scoped to.
type InvitationMeta struct {
	SubjectID string   `json:"subject_id,omitempty"`
	Subjects  []string `json:"subjects,omitempty"`
}

type Invitation struct {
	ID           string                             `json:"id" gorm:"primaryKey;size:36"`
	Key          string                             `json:"key" gorm:"size:36;not null;uniqueIndex"`
	AppletID     string                             `json:"applet_id" gorm:"size:36;not null;index"`
	Email        string                             `json:"email" gorm:"size:256;not null;index"`
	Role         string                             `json:"role" gorm:"size:32;not null"`
	InvitorID    string                             `json:"invitor_id" gorm:"size:36;not null"`
	Status       string                             `json:"status" gorm:"size:16;not null;default:pending"`
	FirstName    string                             `json:"first_name" gorm:"size:128"`
	LastName     string                             `json:"last_name" gorm:"size:128"`
	Nickname     *string                            `json:"nickname,omitempty" gorm:"size:128"`
	SecretUserID *string                            `json:"secret_user_id,omitempty" gorm:"size:128"`
	Meta         datatypes.JSONType[InvitationMeta] `json:"meta"`
	CreatedAt    time.Time                          `json:"created_at"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

func (Invitation) TableName() string {
	return "invitations"
}

// UserPin pins a manager or respondent to the top of a workspace list.
type UserPin struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	UserID          string    `json:"user_id" gorm:"size:36;not null;index"`
	OwnerID         string    `json:"owner_id" gorm:"size:36;not null"`
	Role            string    `json:"role" gorm:"size:32;not null"`
	PinnedUserID    *string   `json:"pinned_user_id,omitempty" gorm:"size:36"`
	PinnedSubjectID *string   `json:"pinned_subject_id,omitempty" gorm:"size:36"`
	CreatedAt       time.Time `json:"created_at"`
}

func (UserPin) TableName() string {
	return "user_pins"
}
