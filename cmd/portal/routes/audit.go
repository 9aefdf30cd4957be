package routes

import (
	"github.com/boxops/portal/cmd/portal/handlers"
	"github.com/labstack/echo/v4"
)

// RegisterAuditRoutes registers audit run and resolution routes
func RegisterAuditRoutes(api *echo.Group, h *handlers.AuditHandler) {
	audits := api.Group("/audits")
	{
		audits.POST("/subscribers/:id", h.RunForSubscriber) // POST /api/v1/audits/subscribers/:id
		audits.POST("/customers", h.RunForCustomer)         // POST /api/v1/audits/customers
		audits.GET("", h.List)                              // GET /api/v1/audits?migration_id=&limit=
		audits.GET("/stats", h.Stats)                       // GET /api/v1/audits/stats
		audits.GET("/:id", h.Get)                           // GET /api/v1/audits/:id
		audits.POST("/:id/resolve", h.Resolve)              // POST /api/v1/audits/:id/resolve
		audits.PATCH("/:id", h.Patch)                       // PATCH /api/v1/audits/:id (merge patch)
	}
}
