// handlers/stats_routes.go
package handlers

import (
	"berenjapp/services"

	"github.com/gofiber/fiber/v2"
)

func SetupStatsRoutes(app *fiber.App, statsService *services.StatsService) {
	app.Get("/players/:id/stats", statsService.GetPlayerStats)
	app.Get("/stats/leaderboard", statsService.GetLeaderboard)
}
