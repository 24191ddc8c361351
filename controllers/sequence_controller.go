package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"relaycrm/models"
	"relaycrm/utils"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Feed   *RunFeed
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger, Feed: NewRunFeed()}
}

type SequenceStepRequest struct {
	TemplateID uint   `json:"template_id" validate:"required"`
	Subject    string `json:"subject"`
	DelayValue *int   `json:"delay_value"`
	DelayUnit  string `json:"delay_unit" validate:"omitempty,oneof=minutes hours days"`
}

type SequenceRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	SenderID    uint                  `json:"sender_id" validate:"required"`
	Status      string                `json:"status" validate:"omitempty,oneof=draft active paused"`
	Steps       []SequenceStepRequest `json:"steps" validate:"dive"`
}

func (sq *SequenceController) buildSteps(reqs []SequenceStepRequest) []models.SequenceStep {
	steps := make([]models.SequenceStep, 0, len(reqs))
	for _, s := range reqs {
		steps = append(steps, models.SequenceStep{
			TemplateID: s.TemplateID,
			Subject:    s.Subject,
			DelayValue: s.DelayValue,
			DelayUnit:  s.DelayUnit,
		})
	}
	return steps
}

func (sq *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req SequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// The sending account must belong to the same tenant
	var sender models.Sender
	if err := sq.DB.Where("id = ? AND organization_id = ?", req.SenderID, user.OrganizationID).
		First(&sender).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Sending account not found",
		})
	}

	sequence := models.Sequence{
		OrganizationID: user.OrganizationID,
		SenderID:       req.SenderID,
		Name:           req.Name,
		Description:    req.Description,
		Steps:          sq.buildSteps(req.Steps),
	}
	if req.Status != "" {
		sequence.Status = req.Status
	}

	if err := sq.DB.Create(&sequence).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sequence)
}

func (sq *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequences []models.Sequence
	if err := sq.DB.Where("organization_id = ?", user.OrganizationID).Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(sequences)
}

func (sq *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sequence models.Sequence
	if err := sq.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(sequence)
}

func (sq *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req SequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var sequence models.Sequence
	if err := sq.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	sequence.Name = req.Name
	sequence.Description = req.Description
	sequence.SenderID = req.SenderID
	sequence.Steps = sq.buildSteps(req.Steps)
	if req.Status != "" {
		sequence.Status = req.Status
	}

	if err := sq.DB.Save(&sequence).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	return c.JSON(sequence)
}

func (sq *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := sq.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		Delete(&models.Sequence{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sequence deleted successfully",
	})
}

// EnrollContact binds a contact to a sequence; the enrollment is immediately
// due (next_send_at = now) so the first step goes out on the next run.
func (sq *SequenceController) EnrollContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req struct {
		ContactID uint `json:"contact_id" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var sequence models.Sequence
	if err := sq.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sequence).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var contact models.Contact
	if err := sq.DB.Where("id = ? AND organization_id = ?", req.ContactID, user.OrganizationID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	if contact.IsUnsubscribed || contact.IsDoNotContact {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Contact cannot be enrolled",
		})
	}

	// One live enrollment per contact per sequence
	var existing models.SequenceEnrollment
	err := sq.DB.Where("sequence_id = ? AND contact_id = ? AND status IN ?",
		sequence.ID, contact.ID, []string{models.EnrollmentActive, models.EnrollmentPaused}).
		First(&existing).Error
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Contact is already enrolled in this sequence",
		})
	}

	enrollment := models.SequenceEnrollment{
		OrganizationID: user.OrganizationID,
		SequenceID:     sequence.ID,
		ContactID:      contact.ID,
		CurrentStep:    0,
		Status:         models.EnrollmentActive,
		NextSendAt:     utils.Pointer(time.Now()),
	}

	if err := sq.DB.Create(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enroll contact",
		})
	}

	sq.DB.Create(&models.ContactActivity{
		OrganizationID: user.OrganizationID,
		ContactID:      contact.ID,
		Type:           "enrolled",
		Description:    "Enrolled in sequence " + sequence.Name,
		SequenceID:     &sequence.ID,
	})

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (sq *SequenceController) GetEnrollments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var enrollments []models.SequenceEnrollment
	if err := sq.DB.Preload("Contact").
		Where("sequence_id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}

	return c.JSON(enrollments)
}

func (sq *SequenceController) PauseEnrollment(c *fiber.Ctx) error {
	return sq.setEnrollmentStatus(c, models.EnrollmentActive, models.EnrollmentPaused)
}

func (sq *SequenceController) ResumeEnrollment(c *fiber.Ctx) error {
	return sq.setEnrollmentStatus(c, models.EnrollmentPaused, models.EnrollmentActive)
}

func (sq *SequenceController) setEnrollmentStatus(c *fiber.Ctx, from, to string) error {
	user := c.Locals("user").(*models.User)

	var enrollment models.SequenceEnrollment
	if err := sq.DB.Where("id = ? AND organization_id = ?", c.Params("enrollmentID"), user.OrganizationID).
		First(&enrollment).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	if enrollment.Status != from {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Enrollment is not " + from,
		})
	}

	updates := map[string]interface{}{"status": to}
	// A resumed enrollment with no scheduled time becomes due immediately
	if to == models.EnrollmentActive && enrollment.NextSendAt == nil {
		updates["next_send_at"] = time.Now()
	}

	if err := sq.DB.Model(&enrollment).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update enrollment",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Enrollment " + to,
	})
}

func (sq *SequenceController) DeleteEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := sq.DB.Where("id = ? AND organization_id = ?", c.Params("enrollmentID"), user.OrganizationID).
		Delete(&models.SequenceEnrollment{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete enrollment",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Enrollment deleted successfully",
	})
}
