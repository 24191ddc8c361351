package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentPaused    = "paused"
	EnrollmentCompleted = "completed"
	EnrollmentReplied   = "replied"
)

// Sequence represents an automated email drip sequence. Steps are stored as
// a jsonb array; step order is the array order and indices are 0-based.
type Sequence struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`
	SenderID       uint `gorm:"not null;index" json:"sender_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft'" json:"status"` // draft, active, paused

	Steps []SequenceStep `json:"steps" gorm:"type:jsonb;serializer:json"`

	// Relations
	Sender      Sender               `json:"-"`
	Enrollments []SequenceEnrollment `gorm:"foreignKey:SequenceID" json:"enrollments,omitempty"`
}

// SequenceStep is one stage of a sequence. The delay is relative to the
// completion of the previous step. DelayValue is a pointer so that legacy
// records with the field absent fall back to 1 while an explicit 0 stays 0.
type SequenceStep struct {
	TemplateID uint   `json:"template_id"`
	Subject    string `json:"subject,omitempty"` // overrides the template subject
	DelayValue *int   `json:"delay_value,omitempty"`
	DelayUnit  string `json:"delay_unit,omitempty"` // minutes, hours, days
}

// SequenceEnrollment binds one contact to one sequence and tracks progress.
// An enrollment is due when it is active and NextSendAt is null or in the
// past; CurrentStep at or past the step count forces completion.
type SequenceEnrollment struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`
	SequenceID     uint `gorm:"not null;index" json:"sequence_id"`
	ContactID      uint `gorm:"not null;index" json:"contact_id"`

	CurrentStep int        `gorm:"default:0" json:"current_step"`
	Status      string     `gorm:"default:'active';index" json:"status"`
	NextSendAt  *time.Time `gorm:"index" json:"next_send_at"`

	// Relations
	Sequence Sequence `json:"sequence,omitempty"`
	Contact  Contact  `json:"contact,omitempty"`
}
