package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"relaycrm/models"
	"relaycrm/utils"
)

// Transparent 1x1 GIF served for open pixels.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type TrackingController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTrackingController(db *gorm.DB, logger *log.Logger) *TrackingController {
	return &TrackingController{DB: db, Logger: logger}
}

// TrackOpen records an email open and returns the pixel. The pixel is
// returned even when the token is bad so broken links don't render as
// missing images in the recipient's client.
func (t *TrackingController) TrackOpen(c *fiber.Ctx) error {
	logID := c.Params("logID")
	token := c.Params("token")

	if utils.ValidTrackingToken(logID, token) {
		err := t.DB.Model(&models.EmailLog{}).Where("id = ?", logID).
			Updates(map[string]interface{}{
				"open_count": gorm.Expr("open_count + 1"),
				"opened_at":  time.Now(),
			}).Error
		if err != nil {
			t.Logger.Printf("Failed to record open for log %s: %v", logID, err)
		}
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	return c.Send(trackingPixel)
}

// TrackClick records a link click and redirects to the original URL. The
// token gates the redirect itself: this endpoint is public, so forwarding
// without verification would make it an open redirector for arbitrary urls.
func (t *TrackingController) TrackClick(c *fiber.Ctx) error {
	logID := c.Params("logID")
	token := c.Params("token")
	target := c.Query("url")

	if target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing url parameter",
		})
	}

	if !utils.ValidTrackingToken(logID, token) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not Found",
		})
	}

	err := t.DB.Model(&models.EmailLog{}).Where("id = ?", logID).
		Updates(map[string]interface{}{
			"click_count": gorm.Expr("click_count + 1"),
			"clicked_at":  time.Now(),
		}).Error
	if err != nil {
		t.Logger.Printf("Failed to record click for log %s: %v", logID, err)
	}

	return c.Redirect(target, fiber.StatusFound)
}
