package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailLog is the append-only record of a sent message. The row is created
// before the network send so its id can be embedded in tracking URLs, then
// updated with the tracking-instrumented body. The tracking endpoints bump
// the open/click counters.
type EmailLog struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`
	SenderID       uint `gorm:"not null;index" json:"sender_id"`
	ContactID      uint `gorm:"not null;index" json:"contact_id"`
	EnrollmentID   uint `gorm:"index" json:"enrollment_id"`
	SequenceID     uint `gorm:"index" json:"sequence_id"`
	StepIndex      int  `json:"step_index"`

	From    string `gorm:"not null" json:"from"`
	To      string `gorm:"not null" json:"to"`
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	Folder string `gorm:"default:'sent'" json:"folder"`
	IsRead bool   `gorm:"default:true" json:"is_read"`

	// Engagement counters, incremented by the tracking endpoints
	OpenCount  int        `gorm:"default:0" json:"open_count"`
	ClickCount int        `gorm:"default:0" json:"click_count"`
	OpenedAt   *time.Time `json:"opened_at"`
	ClickedAt  *time.Time `json:"clicked_at"`

	// Relations
	Sender  Sender  `json:"-"`
	Contact Contact `json:"-"`
}
