package handlers

import (
	"pickleball-session-system/middleware"
	"pickleball-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTemplateRoutes(app *fiber.App, templateService *services.TemplateService) {
	// Configuration check runs before a session exists, no user context needed
	app.Get("/templates/validate", templateService.ValidateConfiguration)

	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Get("/admin/templates", templateService.ListTemplates)
	secured.Post("/admin/templates/:key", templateService.UploadTemplate)
}
