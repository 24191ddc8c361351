package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"relaycrm/models"
	"relaycrm/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{DB: db, Logger: logger}
}

type CreateContactRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`
	Source    string `json:"source"`
}

type UpdateContactRequest struct {
	Email          *string `json:"email" validate:"omitempty,email"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Company        *string `json:"company"`
	Position       *string `json:"position"`
	Phone          *string `json:"phone"`
	Website        *string `json:"website"`
	IsUnsubscribed *bool   `json:"is_unsubscribed"`
	IsDoNotContact *bool   `json:"is_do_not_contact"`
}

func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateContactRequest
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

	contact := models.Contact{
		OrganizationID: user.OrganizationID,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Company:        req.Company,
		Position:       req.Position,
		Phone:          req.Phone,
		Website:        req.Website,
		Source:         req.Source,
	}

	if err := cc.DB.Create(&contact).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contact",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(contact)
}

func (cc *ContactController) GetContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contacts []models.Contact
	if err := cc.DB.Where("organization_id = ?", user.OrganizationID).Find(&contacts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contacts",
		})
	}

	return c.JSON(contacts)
}

func (cc *ContactController) GetContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Preload("Activities").
		Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	return c.JSON(contact)
}

func (cc *ContactController) UpdateContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req UpdateContactRequest
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

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	if req.Email != nil {
		contact.Email = *req.Email
	}
	if req.FirstName != nil {
		contact.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		contact.LastName = *req.LastName
	}
	if req.Company != nil {
		contact.Company = *req.Company
	}
	if req.Position != nil {
		contact.Position = *req.Position
	}
	if req.Phone != nil {
		contact.Phone = *req.Phone
	}
	if req.Website != nil {
		contact.Website = *req.Website
	}
	if req.IsUnsubscribed != nil {
		contact.IsUnsubscribed = *req.IsUnsubscribed
	}
	if req.IsDoNotContact != nil {
		contact.IsDoNotContact = *req.IsDoNotContact
	}

	if err := cc.DB.Save(&contact).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update contact",
		})
	}

	return c.JSON(contact)
}

func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result := cc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		Delete(&models.Contact{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contact",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contact deleted successfully",
	})
}

// VerifyContact runs deliverability checks on the contact's address
func (cc *ContactController) VerifyContact(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var contact models.Contact
	if err := cc.DB.Where("id = ? AND organization_id = ?", c.Params("id"), user.OrganizationID).
		First(&contact).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contact not found",
		})
	}

	result := utils.CheckEmailDomain(contact.Email)
	if result.Status == "valid" {
		if err := cc.DB.Model(&contact).Update("is_verified", true).Error; err != nil {
			cc.Logger.Printf("Failed to mark contact %d verified: %v", contact.ID, err)
		}
	}

	return c.JSON(result)
}
