package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthChecker reports component health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler serves liveness with component health
type HealthHandler struct {
	service string
	checker HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service string, checker HealthChecker) *HealthHandler {
	return &HealthHandler{service: service, checker: checker}
}

// Health returns 200 when every component answers
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	if err := h.checker.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": h.service,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.service,
	})
}
