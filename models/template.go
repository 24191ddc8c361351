package models

import "gorm.io/gorm"

// Template represents an email template for sequence steps
type Template struct {
	gorm.Model
	OrganizationID uint `gorm:"not null;index" json:"organization_id"`

	Name        string `gorm:"not null" json:"name"`
	Subject     string `json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content"`

	Category string `json:"category"`
}
