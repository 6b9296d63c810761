// handlers/match_routes.go
package handlers

import (
	"berenjapp/middleware"
	"berenjapp/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, matchService *services.MatchService) {
	// 🔓 Public reads — *no user context*, but still behind Gateway auth
	app.Get("/matches", matchService.GetAllMatches)
	app.Get("/matches/:id", matchService.GetMatchByID)
	app.Get("/matches/:id/standings", matchService.GetStandings)

	// 🔐 Secured routes — require user context, enforced via middleware
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/matches", matchService.CreateMatch)
	secured.Post("/matches/:id/rounds", matchService.AddRound)
	secured.Put("/matches/:id/rounds/:round_id/results", matchService.UpdateRoundResults)
	secured.Post("/matches/:id/players", matchService.AddPlayer)
	secured.Post("/matches/:id/complete", matchService.CompleteMatch)
	secured.Post("/matches/:id/cancel", matchService.CancelMatch)

	// 🔒 Admin-only
	admin := secured.Group("/admin")
	admin.Post("/matches/:id/archive", matchService.ArchiveMatch)
}
