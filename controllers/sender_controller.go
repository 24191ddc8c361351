package controller

import (
	"crypto/tls"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"relaycrm/models"
	"relaycrm/utils"
)

type SenderController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSenderController(db *gorm.DB, logger *log.Logger) *SenderController {
	return &SenderController{DB: db, Logger: logger}
}

type CreateSenderRequest struct {
	Name         string `json:"name" validate:"required"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	FromName     string `json:"from_name"`
	SMTPHost     string `json:"smtp_host" validate:"required"`
	SMTPPort     int    `json:"smtp_port" validate:"required"`
	SMTPUsername string `json:"smtp_username" validate:"required"`
	SMTPPassword string `json:"smtp_password" validate:"required"`
	DailyLimit   int    `json:"daily_limit"`
}

type UpdateSenderRequest struct {
	Name         *string `json:"name"`
	FromEmail    *string `json:"from_email" validate:"omitempty,email"`
	FromName     *string `json:"from_name"`
	SMTPHost     *string `json:"smtp_host"`
	SMTPPort     *int    `json:"smtp_port"`
	SMTPUsername *string `json:"smtp_username"`
	SMTPPassword *string `json:"smtp_password"`
	DailyLimit   *int    `json:"daily_limit"`
}

func (sc *SenderController) CreateSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateSenderRequest
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

	// Credentials never reach the database in plaintext
	encryptedPassword, err := utils.Encrypt(req.SMTPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt SMTP password",
		})
	}

	sender := models.Sender{
		OrganizationID: user.OrganizationID,
		Name:           req.Name,
		FromEmail:      req.FromEmail,
		FromName:       req.FromName,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		SMTPPassword:   encryptedPassword,
	}
	if req.DailyLimit > 0 {
		sender.DailyLimit = req.DailyLimit
	}

	if err := sc.DB.Create(&sender).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sender",
		})
	}

	sender.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(sender)
}

func (sc *SenderController) GetSenders(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var senders []models.Sender
	if err := sc.DB.Where("organization_id = ?", user.OrganizationID).Find(&senders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch senders",
		})
	}

	for i := range senders {
		senders[i].Sanitize()
	}

	return c.JSON(senders)
}

func (sc *SenderController) GetSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sender models.Sender
	if err := sc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	sender.Sanitize()
	return c.JSON(sender)
}

func (sc *SenderController) UpdateSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req UpdateSenderRequest
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

	var sender models.Sender
	if err := sc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	if req.Name != nil {
		sender.Name = *req.Name
	}
	if req.FromEmail != nil {
		sender.FromEmail = *req.FromEmail
	}
	if req.FromName != nil {
		sender.FromName = *req.FromName
	}
	if req.SMTPHost != nil {
		sender.SMTPHost = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		sender.SMTPPort = *req.SMTPPort
	}
	if req.SMTPUsername != nil {
		sender.SMTPUsername = *req.SMTPUsername
	}
	if req.SMTPPassword != nil {
		encrypted, err := utils.Encrypt(*req.SMTPPassword)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to encrypt SMTP password",
			})
		}
		sender.SMTPPassword = encrypted
		// Changed credentials mean the old verification no longer holds
		sender.SMTPVerified = false
	}
	if req.DailyLimit != nil {
		sender.DailyLimit = *req.DailyLimit
	}

	if err := sc.DB.Save(&sender).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sender",
		})
	}

	sender.Sanitize()
	return c.JSON(sender)
}

func (sc *SenderController) DeleteSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := sc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		Delete(&models.Sender{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sender",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Sender deleted successfully",
	})
}

// TestSender dials the sender's SMTP server with its stored credentials
func (sc *SenderController) TestSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sender models.Sender
	if err := sc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	password, err := utils.Decrypt(sender.SMTPPassword)
	if err != nil {
		utils.LogError("sender_decrypt_failed", err, map[string]interface{}{
			"sender_id": sender.ID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to decrypt SMTP password",
		})
	}

	dialer := gomail.NewDialer(sender.SMTPHost, sender.SMTPPort, sender.SMTPUsername, password)
	dialer.SSL = sender.SMTPPort == 465
	dialer.TLSConfig = &tls.Config{ServerName: sender.SMTPHost, InsecureSkipVerify: true}

	updates := map[string]interface{}{
		"last_tested_at": time.Now(),
	}

	closer, err := dialer.Dial()
	if err != nil {
		sendErr := utils.ClassifySendError(err)
		updates["last_error"] = sendErr.Error()
		sc.DB.Model(&sender).Updates(updates)

		utils.LogError("sender_test_failed", err, map[string]interface{}{
			"sender_id": sender.ID,
			"kind":      string(sendErr.Kind),
		})
		return c.JSON(fiber.Map{
			"success": false,
			"kind":    string(sendErr.Kind),
			"error":   sendErr.Error(),
		})
	}
	closer.Close()

	updates["smtp_verified"] = true
	updates["last_error"] = nil
	sc.DB.Model(&sender).Updates(updates)

	utils.LogEvent("sender_test_completed", map[string]interface{}{
		"sender_id": sender.ID,
		"success":   true,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "SMTP connection verified",
	})
}

// VerifySender checks the sender's from-address domain (MX records, WHOIS)
func (sc *SenderController) VerifySender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var sender models.Sender
	if err := sc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&sender).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sender not found",
		})
	}

	result := utils.CheckEmailDomain(sender.FromEmail)
	if result.Status == "valid" {
		if err := sc.DB.Model(&sender).Update("domain_verified", true).Error; err != nil {
			sc.Logger.Printf("Failed to mark sender %d domain verified: %v", sender.ID, err)
		}
	}

	return c.JSON(result)
}
