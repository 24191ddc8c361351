package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact represents a single CRM contact
type Contact struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	Email     string `gorm:"not null;index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`

	// Status
	IsVerified     bool `gorm:"default:false" json:"is_verified"`
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	// Metadata
	Source      string     `json:"source"` // manual, csv, api
	LastContact *time.Time `json:"last_contact"`

	// Relations
	Enrollments []SequenceEnrollment `gorm:"foreignKey:ContactID" json:"enrollments,omitempty"`
	Activities  []ContactActivity    `gorm:"foreignKey:ContactID" json:"activities,omitempty"`
}

// ContactActivity is the append-only audit feed for a contact
type ContactActivity struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`
	ContactID      uint `gorm:"not null;index" json:"contact_id"`

	Type        string `gorm:"not null" json:"type"` // sequence_email_sent, enrolled, paused, ...
	Description string `json:"description"`

	// Sequence context, set for sequence_email_sent entries
	SequenceID *uint `json:"sequence_id,omitempty"`
	StepIndex  *int  `json:"step_index,omitempty"`

	// Relations
	Contact Contact `json:"-"`
}
