package handlers

import (
	"pickleball-session-system/middleware"
	"pickleball-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/games/:id", gameService.GetGame)
	secured.Post("/games/:id/start", gameService.StartGame)
	secured.Post("/games/:id/cancel", gameService.CancelGame)
	secured.Post("/games/:id/skip-to-court", gameService.SkipToCourt)
	secured.Post("/games/:id/score", gameService.SubmitScore)
	secured.Put("/games/:id/score", gameService.UpdateScore)
}
