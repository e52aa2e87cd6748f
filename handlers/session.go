package handlers

import (
	"pickleball-session-system/middleware"
	"pickleball-session-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(app *fiber.App, sessionService *services.SessionService) {
	// 🔓 Public spectator routes (anyone with the share code can follow)
	app.Get("/public/sessions", sessionService.GetPublicActiveSessions)
	app.Get("/public/sessions/:code", sessionService.FindByCode)
	app.Get("/public/sessions/:code/games", sessionService.GetPublicGamesByStatus)
	app.Get("/public/sessions/:code/players", sessionService.GetPublicPlayerStats)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Drafts
	secured.Get("/sessions/drafts", sessionService.GetDrafts)
	secured.Put("/sessions/drafts/:id", sessionService.UpdateDraft)
	secured.Delete("/sessions/drafts/:id", sessionService.DeleteDraft)
	secured.Post("/sessions/drafts/:id/activate", sessionService.ActivateDraft)

	// Session lifecycle
	secured.Post("/sessions", sessionService.CreateSession)
	secured.Get("/sessions/active", sessionService.GetActiveSessions)
	secured.Get("/sessions/history", sessionService.GetHistory)
	secured.Get("/sessions/:id", sessionService.GetSession)
	secured.Post("/sessions/:id/start", sessionService.StartSession)
	secured.Post("/sessions/:id/finalize", sessionService.FinalizeSession)

	// Stage and bracket advancement
	secured.Get("/sessions/:id/can-advance", sessionService.CanAdvance)
	secured.Post("/sessions/:id/advance-stage", sessionService.AdvanceStage)
	secured.Post("/sessions/:id/playoffs", sessionService.GeneratePlayoffBracket)
	secured.Post("/sessions/:id/finals", sessionService.GenerateP8Finals)

	// Read surfaces
	secured.Get("/sessions/:id/players", sessionService.GetPlayerStats)
	secured.Get("/sessions/:id/players/:player_id/games", sessionService.GetPlayerGames)
	secured.Get("/sessions/:id/games", sessionService.GetGamesByStatus)
}
