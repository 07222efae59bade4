package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types and related resource kinds.
const (
	NotificationTypeTeamInvitation     = "team_invitation"
	NotificationTypeInvitationResponse = "team_invitation_response"
	RelatedTypeTeamInvitation          = "team_invitation"
)

// Notification represents an in-app notification for a user.
type Notification struct {
	BaseModel

	UserID  string         `gorm:"size:36;index;not null" json:"userId"`
	Type    string         `gorm:"size:64;not null" json:"type"`
	Title   string         `gorm:"size:255;not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Data    datatypes.JSON `json:"data"`

	RelatedType string `gorm:"size:64;index:idx_notifications_related" json:"relatedType,omitempty"`
	RelatedID   string `gorm:"size:36;index:idx_notifications_related" json:"relatedId,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"read"`
	ReadAt *time.Time `json:"readAt"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
