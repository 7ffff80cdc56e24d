package entity

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityAttrs are shared by activities and activity_histories.
type ActivityAttrs struct {
	Name                   string         `json:"name" gorm:"size:256;not null"`
	Description            datatypes.JSON `json:"description"`
	Splash                 string         `json:"splash" gorm:"size:512"`
	Image                  string         `json:"image" gorm:"size:512"`
	ShowAllAtOnce          bool           `json:"show_all_at_once"`
	IsSkippable            bool           `json:"is_skippable"`
	IsReviewable           bool           `json:"is_reviewable"`
	IsHidden               bool           `json:"is_hidden"`
	ResponseIsEditable     bool           `json:"response_is_editable"`
	Order                  int            `json:"order" gorm:"not null;default:0"`
	ScoresAndReports       datatypes.JSON `json:"scores_and_reports"`
	SubscaleSetting        datatypes.JSON `json:"subscale_setting"`
	ReportIncludedItemName *string        `json:"report_included_item_name,omitempty" gorm:"size:256"`
	PerformanceTaskType    *string        `json:"performance_task_type,omitempty" gorm:"size:32"`
}

type Activity struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	AppletID string `json:"applet_id" gorm:"size:36;not null;index"`
	ActivityAttrs
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []ActivityItem `json:"items,omitempty" gorm:"foreignKey:ActivityID"`
}

func (Activity) TableName() string {
	return "activities"
}

type ActivityHistory struct {
	IDVersion string `json:"id_version" gorm:"primaryKey;size:80"`
	ID        string `json:"id" gorm:"size:36;not null;index"`
	AppletID  string `json:"applet_id" gorm:"size:80;not null;index"`
	ActivityAttrs
	CreatedAt time.Time `json:"created_at"`

	Items []ActivityItemHistory `json:"items,omitempty" gorm:"foreignKey:ActivityID;references:IDVersion"`
}

func (ActivityHistory) TableName() string {
	return "activity_histories"
}

// ItemAttrs are shared by activity_items and activity_item_histories.
type ItemAttrs struct {
	Name             string         `json:"name" gorm:"size:256;not null"`
	Question         datatypes.JSON `json:"question"`
	ResponseType     string         `json:"response_type" gorm:"size:32;not null"`
	ResponseValues   datatypes.JSON `json:"response_values"`
	Config           datatypes.JSON `json:"config"`
	ConditionalLogic datatypes.JSON `json:"conditional_logic"`
	AllowEdit        bool           `json:"allow_edit"`
	IsHidden         bool           `json:"is_hidden"`
	Order            int            `json:"order" gorm:"not null;default:0"`
}

type ActivityItem struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	ActivityID string `json:"activity_id" gorm:"size:36;not null;index"`
	ItemAttrs
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ActivityItem) TableName() string {
	return "activity_items"
}

type ActivityItemHistory struct {
	IDVersion  string `json:"id_version" gorm:"primaryKey;size:80"`
	ID         string `json:"id" gorm:"size:36;not null;index"`
	ActivityID string `json:"activity_id" gorm:"size:80;not null;index"`
	ItemAttrs
	CreatedAt time.Time `json:"created_at"`
}

func (ActivityItemHistory) TableName() string {
	return "activity_item_histories"
}
