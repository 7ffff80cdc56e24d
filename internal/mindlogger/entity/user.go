package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	Email          string         `json:"email" gorm:"size:256;not null;uniqueIndex"`
	FirstName      string         `json:"first_name" gorm:"size:128"`
	LastName       string         `json:"last_name" gorm:"size:128"`
	HashedPassword string         `json:"-" gorm:"size:128;not null"`
	IsSuperAdmin   bool           `json:"is_super_admin"`
	LastSeenAt     *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// UserWorkspace belongs to an applet owner and decides where the answers of
// the owner's applets are stored. DatabaseURI and StorageSecretKey are sealed.
type UserWorkspace struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	UserID           string    `json:"user_id" gorm:"size:36;not null;uniqueIndex"`
	WorkspaceName    string    `json:"workspace_name" gorm:"size:256"`
	UseArbitrary     bool      `json:"use_arbitrary"`
	DatabaseURI      string    `json:"-" gorm:"type:text"`
	StorageType      string    `json:"storage_type,omitempty" gorm:"size:16"`
	StorageURL       string    `json:"storage_url,omitempty" gorm:"size:512"`
	StorageRegion    string    `json:"storage_region,omitempty" gorm:"size:64"`
	StorageBucket    string    `json:"storage_bucket,omitempty" gorm:"size:128"`
	StorageAccessKey string    `json:"storage_access_key,omitempty" gorm:"size:256"`
	StorageSecretKey string    `json:"-" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (UserWorkspace) TableName() string {
	return "users_workspaces"
}

// Job statuses
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobRetry      = "retry"
	JobError      = "error"
	JobSuccess    = "success"
)

// Job is the persistent record of a background task.
type Job struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CreatorID string         `json:"creator_id" gorm:"size:36;not null;index"`
	Name      string         `json:"name" gorm:"size:64;not null"`
	Status    string         `json:"status" gorm:"size:16;not null;default:pending"`
	Details   datatypes.JSON `json:"details,omitempty"`
	Retries   int            `json:"retries"`
	Cancelled bool           `json:"cancelled"`
	LastError string         `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}
