package models

import (
	"strings"

	"gorm.io/gorm"
)

// User is an account known to the platform. Accounts are provisioned by the identity service;
// this service only reads them.
type User struct {
	BaseModel

	Email    string `gorm:"size:320;uniqueIndex;not null" json:"email"`
	FullName string `gorm:"size:255" json:"fullName"`
	PhotoURL string `gorm:"type:text" json:"photoURL"`
	Role     string `gorm:"size:32" json:"role"`
	IsActive bool   `gorm:"default:true" json:"isActive"`

	Projects []Project `gorm:"many2many:project_members;" json:"projects,omitempty"`
}

// BeforeSave normalises the e-mail address used for invitation matching.
func (u *User) BeforeSave(_ *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// DisplayName returns the full name, falling back to the e-mail address.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Email
}

// NormalizeEmail lower-cases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
