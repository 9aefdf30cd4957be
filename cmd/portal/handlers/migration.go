package handlers

import (
	"context"
	"net/http"

	"github.com/boxops/portal/cmd/portal/middleware"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/boxops/portal/common/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// MigrationService is the batch audit surface the handler depends on
type MigrationService interface {
	Start(ctx context.Context, orgID uuid.UUID, req service.StartMigrationRequest) (*models.MigrationRun, error)
	Get(ctx context.Context, orgID, runID uuid.UUID) (*models.MigrationRun, error)
}

// MigrationHandler starts and reports batch audits
type MigrationHandler struct {
	migrations MigrationService
	log        *logger.Logger
}

// NewMigrationHandler creates a new migration handler
func NewMigrationHandler(migrations MigrationService, log *logger.Logger) *MigrationHandler {
	return &MigrationHandler{
		migrations: migrations,
		log:        log,
	}
}

// Start launches a batch audit in the background
// POST /api/v1/migrations
func (h *MigrationHandler) Start(c echo.Context) error {
	var req service.StartMigrationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}
	req.StartedBy = middleware.GetUserID(c)

	run, err := h.migrations.Start(c.Request().Context(), middleware.GetOrganizationID(c), req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusAccepted, run)
}

// Get returns a run with its totals
// GET /api/v1/migrations/:id
func (h *MigrationHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid migration id")
	}

	run, err := h.migrations.Get(c.Request().Context(), middleware.GetOrganizationID(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, run)
}
