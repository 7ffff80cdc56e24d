package entity

import (
	"time"

	"gorm.io/datatypes"
)

type FlowAttrs struct {
	Name                       string         `json:"name" gorm:"size:256;not null"`
	Description                datatypes.JSON `json:"description"`
	IsSingleReport             bool           `json:"is_single_report"`
	HideBadge                  bool           `json:"hide_badge"`
	IsHidden                   bool           `json:"is_hidden"`
	Order                      int            `json:"order" gorm:"not null;default:0"`
	ReportIncludedActivityName *string        `json:"report_included_activity_name,omitempty" gorm:"size:256"`
	ReportIncludedItemName     *string        `json:"report_included_item_name,omitempty" gorm:"size:256"`
}

// Flow is an ordered sequence of activities.
type Flow struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	AppletID string `json:"applet_id" gorm:"size:36;not null;index"`
	FlowAttrs
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []FlowItem `json:"items,omitempty" gorm:"foreignKey:ActivityFlowID"`
}

func (Flow) TableName() string {
	return "flows"
}

type FlowItem struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	ActivityFlowID string    `json:"activity_flow_id" gorm:"size:36;not null;index"`
	ActivityID     string    `json:"activity_id" gorm:"size:36;not null;index"`
	Order          int       `json:"order" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
}

func (FlowItem) TableName() string {
	return "flow_items"
}

type FlowHistory struct {
	IDVersion string `json:"id_version" gorm:"primaryKey;size:80"`
	ID        string `json:"id" gorm:"size:36;not null;index"`
	AppletID  string `json:"applet_id" gorm:"size:80;not null;index"`
	FlowAttrs
	CreatedAt time.Time `json:"created_at"`

	Items []FlowItemHistory `json:"items,omitempty" gorm:"foreignKey:ActivityFlowID;references:IDVersion"`
}

func (FlowHistory) TableName() string {
	return "flow_histories"
}

type FlowItemHistory struct {
	IDVersion      string    `json:"id_version" gorm:"primaryKey;size:80"`
	ID             string    `json:"id" gorm:"size:36;not null;index"`
	ActivityFlowID string    `json:"activity_flow_id" gorm:"size:80;not null;index"`
	ActivityID     string    `json:"activity_id" gorm:"size:80;not null"`
	Order          int       `json:"order" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
}

func (FlowItemHistory) TableName() string {
	return "flow_item_histories"
}
