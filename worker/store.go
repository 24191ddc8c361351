package worker

import (
	"time"

	"gorm.io/gorm"

	"relaycrm/models"
)

// Store is the persistence boundary the processor runs against. A Store is
// scoped to one organization; every query it issues is keyed by that tenant.
type Store interface {
	// DueEnrollments returns active enrollments whose next send time has
	// arrived or was never set, with contact and sequence joined in.
	DueEnrollments() ([]models.SequenceEnrollment, error)
	TemplateByID(id uint) (*models.Template, error)
	SenderByID(id uint) (*models.Sender, error)
	CreateEmailLog(entry *models.EmailLog) error
	UpdateEmailLogBody(logID uint, body string) error
	CreateActivity(activity *models.ContactActivity) error
	// AdvanceEnrollment persists the post-send enrollment state in one write.
	AdvanceEnrollment(enrollmentID uint, currentStep int, status string, nextSendAt *time.Time) error
	IncrementSenderUsage(senderID uint) error
}

// GormStore implements Store on the application database.
type GormStore struct {
	db    *gorm.DB
	orgID uint
}

func NewGormStore(db *gorm.DB, orgID uint) *GormStore {
	return &GormStore{db: db, orgID: orgID}
}

func (s *GormStore) DueEnrollments() ([]models.SequenceEnrollment, error) {
	var enrollments []models.SequenceEnrollment
	err := s.db.
		Preload("Contact").
		Preload("Sequence").
		Where("organization_id = ? AND status = ?", s.orgID, models.EnrollmentActive).
		Where("next_send_at <= ? OR next_send_at IS NULL", time.Now()).
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (s *GormStore) TemplateByID(id uint) (*models.Template, error) {
	var tmpl models.Template
	if err := s.db.Where("organization_id = ?", s.orgID).First(&tmpl, id).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *GormStore) SenderByID(id uint) (*models.Sender, error) {
	var sender models.Sender
	if err := s.db.Where("organization_id = ?", s.orgID).First(&sender, id).Error; err != nil {
		return nil, err
	}
	return &sender, nil
}

func (s *GormStore) CreateEmailLog(entry *models.EmailLog) error {
	return s.db.Create(entry).Error
}

func (s *GormStore) UpdateEmailLogBody(logID uint, body string) error {
	return s.db.Model(&models.EmailLog{}).
		Where("id = ?", logID).
		Update("body", body).Error
}

func (s *GormStore) CreateActivity(activity *models.ContactActivity) error {
	return s.db.Create(activity).Error
}

func (s *GormStore) AdvanceEnrollment(enrollmentID uint, currentStep int, status string, nextSendAt *time.Time) error {
	return s.db.Model(&models.SequenceEnrollment{}).
		Where("id = ?", enrollmentID).
		Updates(map[string]interface{}{
			"current_step": currentStep,
			"status":       status,
			"next_send_at": nextSendAt,
			"updated_at":   time.Now(),
		}).Error
}

func (s *GormStore) IncrementSenderUsage(senderID uint) error {
	return s.db.Model(&models.Sender{}).
		Where("id = ?", senderID).
		Updates(map[string]interface{}{
			"sent_today": gorm.Expr("sent_today + ?", 1),
			"total_sent": gorm.Expr("total_sent + ?", 1),
		}).Error
}
