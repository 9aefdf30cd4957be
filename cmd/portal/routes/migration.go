package routes

import (
	"github.com/boxops/portal/cmd/portal/handlers"
	"github.com/labstack/echo/v4"
)

// RegisterMigrationRoutes registers batch audit routes
func RegisterMigrationRoutes(api *echo.Group, h *handlers.MigrationHandler) {
	migrations := api.Group("/migrations")
	{
		migrations.POST("", h.Start)   // POST /api/v1/migrations
		migrations.GET("/:id", h.Get) // GET /api/v1/migrations/:id
	}
}
