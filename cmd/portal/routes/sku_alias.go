package routes

import (
	"github.com/boxops/portal/cmd/portal/handlers"
	"github.com/labstack/echo/v4"
)

// RegisterSkuAliasRoutes registers SKU alias management routes
func RegisterSkuAliasRoutes(api *echo.Group, h *handlers.SkuAliasHandler) {
	aliases := api.Group("/sku-aliases")
	{
		aliases.GET("", h.List)   // GET /api/v1/sku-aliases
		aliases.PUT("", h.Upsert) // PUT /api/v1/sku-aliases
	}
}
