package controller

import (
	"github.com/gofiber/fiber/v2"

	"relaycrm/config"
	"relaycrm/models"
	"relaycrm/utils"
	"relaycrm/worker"
)

// ProcessSequences runs one pass over the tenant's due enrollments. Each
// run builds its own transport pool so SMTP credentials are decrypted at
// most once per sending account and every connection is closed before the
// response goes out.
func (sq *SequenceController) ProcessSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	store := worker.NewGormStore(sq.DB, user.OrganizationID)
	pool := utils.NewSMTPPool(utils.Decrypt, config.AppConfig.SMTPMaxConns, config.AppConfig.SMTPMaxMessages)
	defer pool.Close()

	processor := worker.NewSequenceProcessor(store, pool, sq.Logger,
		config.AppConfig.TrackingBaseURL, config.AppConfig.SequenceBatchSize)

	report, err := processor.ProcessDueEnrollments()
	if err != nil {
		utils.LogError("sequence_process_failed", err, map[string]interface{}{
			"organization_id": user.OrganizationID,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to process sequences: " + err.Error(),
		})
	}

	utils.LogEvent("sequence_run_completed", map[string]interface{}{
		"organization_id": user.OrganizationID,
		"processed":       report.Processed,
		"failures":        report.FailureCount,
	})

	sq.Feed.Broadcast(report)

	return c.JSON(fiber.Map{
		"success":      true,
		"processed":    report.Processed,
		"successCount": report.SuccessCount,
		"failureCount": report.FailureCount,
		"message":      report.Message,
		"details":      report.Details,
	})
}
