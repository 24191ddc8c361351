package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender represents one SMTP sending identity. Credentials are encrypted in
// the application layer before they reach the database and are only decrypted
// transiently while a transport is being constructed.
type Sender struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null" json:"from_email"`
	FromName  string `json:"from_name"`

	// ========= SMTP Configuration =========
	SMTPHost     string `gorm:"not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"not null" json:"smtp_port"`
	SMTPUsername string `gorm:"not null" json:"smtp_username"`
	SMTPPassword string `gorm:"not null" json:"-"` // Encrypted in application layer

	// ========= Status & Verification =========
	SMTPVerified   bool       `json:"smtp_verified" gorm:"default:false"`
	DomainVerified bool       `json:"domain_verified" gorm:"default:false"`
	LastTestedAt   *time.Time `json:"last_tested_at"`
	LastError      *string    `json:"last_error"`

	// ========= Usage Metrics =========
	DailyLimit int `gorm:"default:500" json:"daily_limit"`
	SentToday  int `gorm:"default:0" json:"sent_today"`
	TotalSent  int `gorm:"default:0" json:"total_sent"`

	// Relations
	Sequences []Sequence `gorm:"foreignKey:SenderID" json:"sequences,omitempty"`
}

// Sanitize strips secrets before the sender is returned to a client
func (s *Sender) Sanitize() {
	s.SMTPPassword = ""
}
