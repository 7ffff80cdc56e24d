package entity

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Encryption holds the DH group parameters and the owner's public key.
// Values are JSON byte lists ("[1, 2, ...]").
type Encryption struct {
	PublicKey string `json:"public_key" gorm:"type:text"`
	Prime     string `json:"prime" gorm:"type:text"`
	Base      string `json:"base" gorm:"type:text"`
	AccountID string `json:"account_id" gorm:"size:36"`
}

func (e Encryption) IsSet() bool {
	return e.PublicKey != "" && e.Prime != "" && e.Base != ""
}

// Retention types
const (
	RetentionDays   = "days"
	RetentionWeeks  = "weeks"
	RetentionMonths = "months"
	RetentionYears  = "years"
)

// AppletAttrs are the attributes frozen into every applet_histories row.
type AppletAttrs struct {
	DisplayName         string                      `json:"display_name" gorm:"size:256;not null"`
	Description         datatypes.JSON              `json:"description"`
	About               datatypes.JSON              `json:"about"`
	Image               string                      `json:"image" gorm:"size:512"`
	WatermarkURL        string                      `json:"watermark" gorm:"size:512"`
	ThemeID             *string                     `json:"theme_id,omitempty" gorm:"size:36"`
	Version             string                      `json:"version" gorm:"size:32;not null"`
	Encryption          Encryption                  `json:"encryption" gorm:"embedded;embeddedPrefix:encryption_"`
	ReportServerIP      string                      `json:"report_server_ip" gorm:"size:256"`
	ReportPublicKey     string                      `json:"report_public_key" gorm:"type:text"`
	ReportRecipients    datatypes.JSONSlice[string] `json:"report_recipients"`
	ReportIncludeUserID bool                        `json:"report_include_user_id"`
	ReportIncludeCaseID bool                        `json:"report_include_case_id"`
	ReportEmailBody     string                      `json:"report_email_body" gorm:"type:text"`
	StreamEnabled       bool                        `json:"stream_enabled"`
}

type Applet struct {
	ID string `json:"id" gorm:"primaryKey;size:36"`
	AppletAttrs
	Link            *string        `json:"link,omitempty" gorm:"size:36;index"`
	RequireLogin    bool           `json:"require_login"`
	RetentionPeriod *int           `json:"retention_period,omitempty"`
	RetentionType   *string        `json:"retention_type,omitempty" gorm:"size:16"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Applet) TableName() string {
	return "applets"
}

// AppletHistory is an immutable snapshot of an applet at one version.
type AppletHistory struct {
	IDVersion string `json:"id_version" gorm:"primaryKey;size:80"`
	ID        string `json:"id" gorm:"size:36;not null;index"`
	AppletAttrs
	UserID    string    `json:"user_id" gorm:"size:36"`
	CreatedAt time.Time `json:"created_at"`
}

func (AppletHistory) TableName() string {
	return "applet_histories"
}

// IDVersion builds the composite key of a history row.
func IDVersion(id, version string) string {
	return fmt.Sprintf("%s_%s", id, version)
}
