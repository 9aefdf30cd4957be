package handlers

import (
	"context"
	"net/http"

	"github.com/boxops/portal/cmd/portal/middleware"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SkuAliasService is the alias surface the handler depends on
type SkuAliasService interface {
	Aliases(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error)
	UpsertAlias(ctx context.Context, alias *models.SkuAlias) error
}

// SkuAliasHandler manages the SKU to box sequence mapping of a tenant
type SkuAliasHandler struct {
	aliases SkuAliasService
	log     *logger.Logger
}

// NewSkuAliasHandler creates a new SKU alias handler
func NewSkuAliasHandler(aliases SkuAliasService, log *logger.Logger) *SkuAliasHandler {
	return &SkuAliasHandler{
		aliases: aliases,
		log:     log,
	}
}

type upsertAliasRequest struct {
	SKU            string `json:"sku"`
	SequenceNumber int    `json:"sequence_number"`
}

// List returns every alias of the organization
// GET /api/v1/sku-aliases
func (h *SkuAliasHandler) List(c echo.Context) error {
	aliases, err := h.aliases.Aliases(c.Request().Context(), middleware.GetOrganizationID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sku_aliases": aliases,
		"count":       len(aliases),
	})
}

// Upsert creates or replaces an alias
// PUT /api/v1/sku-aliases
func (h *SkuAliasHandler) Upsert(c echo.Context) error {
	var req upsertAliasRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	alias := &models.SkuAlias{
		OrganizationID: middleware.GetOrganizationID(c),
		SKU:            req.SKU,
		SequenceNumber: req.SequenceNumber,
	}
	if err := h.aliases.UpsertAlias(c.Request().Context(), alias); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, alias)
}
