package models

import (
	"time"

	"gorm.io/gorm"
)

// InvitationStatus is the lifecycle state of a team invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// DefaultInvitationRole is assigned when the inviter does not pick one.
const DefaultInvitationRole = "member"

// IsTerminal reports whether no further transition is permitted from s.
func (s InvitationStatus) IsTerminal() bool {
	switch s {
	case InvitationAccepted, InvitationDeclined, InvitationExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s InvitationStatus) Valid() bool {
	return s == InvitationPending || s.IsTerminal()
}

// Invitation is a directed, time-bounded offer of team membership from InvitedBy to Email.
//
// PendingEmail mirrors Email while the invitation is pending and is NULL otherwise. Its unique
// index makes "one pending invitation per e-mail" hold at the storage layer on every supported
// driver.
type Invitation struct {
	BaseModel

	Email     string           `gorm:"size:320;index;not null" json:"email"`
	Name      string           `gorm:"size:255" json:"name,omitempty"`
	Role      string           `gorm:"size:32;not null;default:'member'" json:"role"`
	InvitedBy string           `gorm:"size:36;index;not null" json:"invitedBy"`
	UserID    *string          `gorm:"size:36;index" json:"userId,omitempty"`
	Status    InvitationStatus `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	ExpiresAt time.Time        `gorm:"index" json:"expiresAt"`
	TokenHash string           `gorm:"size:64;uniqueIndex;not null" json:"-"`

	PendingEmail *string    `gorm:"size:320;uniqueIndex" json:"-"`
	RespondedAt  *time.Time `json:"respondedAt,omitempty"`

	Inviter *User `gorm:"foreignKey:InvitedBy;constraint:OnDelete:CASCADE" json:"inviter,omitempty"`
}

// TableName keeps invitations apart from any other invite tables in a shared schema.
func (Invitation) TableName() string {
	return "team_invitations"
}

// BeforeCreate assigns the identifier and synchronises the pending guard column.
func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if err := i.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	i.Email = NormalizeEmail(i.Email)
	if i.Status == "" {
		i.Status = InvitationPending
	}
	if i.Role == "" {
		i.Role = DefaultInvitationRole
	}
	i.PendingEmail = PendingGuard(i.Status, i.Email)
	return nil
}

// IsExpiredAt reports whether a pending invitation has passed its expiry at now.
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return i.Status == InvitationPending && !now.Before(i.ExpiresAt)
}

// EffectiveStatus is the status a reader should observe at now, applying lazy expiry.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.IsExpiredAt(now) {
		return InvitationExpired
	}
	return i.Status
}

// PendingGuard returns the value stored in the pending_email column for status.
func PendingGuard(status InvitationStatus, email string) *string {
	if status != InvitationPending {
		return nil
	}
	value := NormalizeEmail(email)
	return &value
}
