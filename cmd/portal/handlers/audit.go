package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/boxops/portal/cmd/portal/middleware"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/boxops/portal/common/service"
	"github.com/boxops/portal/common/validation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const maxListLimit = 500

// AuditService is the audit surface the handler depends on
type AuditService interface {
	RunForSubscriber(ctx context.Context, orgID, subscriberID uuid.UUID, opts service.RunOptions) (*service.AuditOutcome, error)
	RunForCustomer(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*service.AuditOutcome, error)
	Resolve(ctx context.Context, orgID, auditLogID uuid.UUID, req service.ResolveRequest) (*service.ResolveOutcome, error)
	Get(ctx context.Context, orgID, auditLogID uuid.UUID) (*models.AuditLog, error)
	List(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID, limit int) ([]*models.AuditLog, error)
	Stats(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error)
}

// AuditHandler handles audit runs and reviewer resolution
type AuditHandler struct {
	audits       AuditService
	defaultLimit int
	log          *logger.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audits AuditService, defaultLimit int, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		audits:       audits,
		defaultLimit: defaultLimit,
		log:          log,
	}
}

type customerAuditRequest struct {
	CustomerID string `json:"customer_id" validate:"max=64"`
	Email      string `json:"email" validate:"omitempty,email"`
}

type resolveRequest struct {
	ResolvedNextBox int     `json:"resolved_next_box" validate:"gte=1"`
	Note            *string `json:"note" validate:"omitempty,max=2000"`
}

// RunForSubscriber audits one subscriber
// POST /api/v1/audits/subscribers/:id
func (h *AuditHandler) RunForSubscriber(c echo.Context) error {
	subscriberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid subscriber id")
	}

	outcome, err := h.audits.RunForSubscriber(c.Request().Context(), middleware.GetOrganizationID(c), subscriberID, service.RunOptions{})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// RunForCustomer audits a platform customer without touching subscriber state
// POST /api/v1/audits/customers
func (h *AuditHandler) RunForCustomer(c echo.Context) error {
	var req customerAuditRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.audits.RunForCustomer(c.Request().Context(), middleware.GetOrganizationID(c), models.CustomerLookup{
		CustomerID: req.CustomerID,
		Email:      req.Email,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// Get returns one audit log
// GET /api/v1/audits/:id
func (h *AuditHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid audit log id")
	}

	entry, err := h.audits.Get(c.Request().Context(), middleware.GetOrganizationID(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// List returns the newest audit logs
// GET /api/v1/audits?migration_id=&limit=
func (h *AuditHandler) List(c echo.Context) error {
	migrationID, err := optionalUUID(c.QueryParam("migration_id"))
	if err != nil {
		return badRequest(c, "invalid migration_id")
	}

	limit := h.defaultLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			return badRequest(c, "limit must be between 1 and 500")
		}
	}

	logs, err := h.audits.List(c.Request().Context(), middleware.GetOrganizationID(c), migrationID, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"audit_logs": logs,
		"count":      len(logs),
	})
}

// Stats counts audit logs per status
// GET /api/v1/audits/stats?migration_id=
func (h *AuditHandler) Stats(c echo.Context) error {
	migrationID, err := optionalUUID(c.QueryParam("migration_id"))
	if err != nil {
		return badRequest(c, "invalid migration_id")
	}

	counts, err := h.audits.Stats(c.Request().Context(), middleware.GetOrganizationID(c), migrationID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counts": counts,
	})
}

// Resolve records a reviewer decision on a flagged audit log
// POST /api/v1/audits/:id/resolve
func (h *AuditHandler) Resolve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid audit log id")
	}

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err.Error())
	}

	return h.resolve(c, id, req.ResolvedNextBox, req.Note)
}

// Patch resolves an audit log with an RFC 7396 merge patch limited to
// status, resolved_next_box and resolution_note
// PATCH /api/v1/audits/:id
func (h *AuditHandler) Patch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid audit log id")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 64<<10))
	if err != nil {
		return badRequest(c, "failed to read request body")
	}

	current, err := h.audits.Get(c.Request().Context(), middleware.GetOrganizationID(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	patch, err := validation.ApplyResolutionPatch(current, body)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return h.resolve(c, id, patch.ResolvedNextBox, patch.Note)
}

func (h *AuditHandler) resolve(c echo.Context, id uuid.UUID, nextBox int, note *string) error {
	outcome, err := h.audits.Resolve(c.Request().Context(), middleware.GetOrganizationID(c), id, service.ResolveRequest{
		ResolvedNextBox: nextBox,
		ResolvedBy:      middleware.GetUserID(c),
		Note:            note,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
