package models

import (
	"time"

	"gorm.io/gorm"
)

// Organization is the tenant boundary. Every CRM row is keyed by
// OrganizationID and queries always filter on it.
type Organization struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`

	// Relations
	Users    []User    `gorm:"foreignKey:OrganizationID" json:"users,omitempty"`
	Contacts []Contact `gorm:"foreignKey:OrganizationID" json:"contacts,omitempty"`
	Senders  []Sender  `gorm:"foreignKey:OrganizationID" json:"senders,omitempty"`
}

// User represents a user account in the system
type User struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	// Google OAuth fields
	GoogleID       *string `gorm:"uniqueIndex" json:"google_id,omitempty"`
	GoogleImageURL *string `json:"google_image_url,omitempty"`

	// Profile information
	Name     *string `json:"name,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Relations
	Organization Organization `json:"-"`
}

// RefreshToken tracks issued refresh tokens so they can be revoked
type RefreshToken struct {
	gorm.Model
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Revoked   bool      `gorm:"default:false" json:"revoked"`

	// Relations
	User User `json:"-"`
}
