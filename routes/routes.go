package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "relaycrm/controllers"
	"relaycrm/middleware"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Google OAuth routes
	auth.Get("/google", controller.GoogleOAuth)
	auth.Get("/google/callback", controller.GoogleOAuthCallback)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/change-password", controller.ChangePassword)
	protectedAuth.Get("/me", controller.GetCurrentUser)

	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB) {
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	senderController := controller.NewSenderController(db, log.New(os.Stdout, "SENDER: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACKING: ", log.LstdFlags))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Contact routes
	contact := api.Group("/contacts")
	contact.Post("/", contactController.CreateContact)
	contact.Get("/", contactController.GetContacts)
	contact.Get("/:id", contactController.GetContact)
	contact.Put("/:id", contactController.UpdateContact)
	contact.Delete("/:id", contactController.DeleteContact)
	contact.Post("/:id/verify", contactController.VerifyContact)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Sender routes with rate limiting on the SMTP-touching endpoints
	sender := api.Group("/senders")
	sender.Post("/", senderController.CreateSender)
	sender.Get("/", senderController.GetSenders)
	sender.Get("/:id", senderController.GetSender)
	sender.Put("/:id", senderController.UpdateSender)
	sender.Delete("/:id", senderController.DeleteSender)
	sender.Post("/:id/test", middleware.SenderRateLimiter(), senderController.TestSender)
	sender.Post("/:id/verify", middleware.SenderRateLimiter(), senderController.VerifySender)

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/process", middleware.ProcessRateLimiter(), sequenceController.ProcessSequences)
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)

	// Enrollment routes
	sequence.Post("/:id/enroll", sequenceController.EnrollContact)
	sequence.Get("/:id/enrollments", sequenceController.GetEnrollments)
	sequence.Post("/:id/enrollments/:enrollmentID/pause", sequenceController.PauseEnrollment)
	sequence.Post("/:id/enrollments/:enrollmentID/resume", sequenceController.ResumeEnrollment)
	sequence.Delete("/:id/enrollments/:enrollmentID", sequenceController.DeleteEnrollment)

	// WebSocket route for sequence run reports
	app.Get("/api/v1/sequences/runs/ws", websocket.New(sequenceController.Feed.Handler))

	// Tracking routes are public; recipients hit them from email clients
	app.Get("/track/open/:logID/:token", trackingController.TrackOpen)
	app.Get("/track/click/:logID/:token", trackingController.TrackClick)

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	controller.InitOAuth()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
