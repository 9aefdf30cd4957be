package handlers

import (
	"errors"
	"net/http"

	"github.com/boxops/portal/common/clients"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/service"
	"github.com/boxops/portal/common/validation"
	"github.com/labstack/echo/v4"
)

// respondError translates service errors into HTTP responses
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var upstream *clients.UpstreamError

	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})

	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
		})

	case errors.Is(err, service.ErrSubscriberBusy):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":   err.Error(),
			"message": "Another audit of this subscriber is running. Retry shortly.",
		})

	case errors.Is(err, service.ErrInvalidResolution),
		errors.Is(err, service.ErrNoIdentity),
		errors.Is(err, service.ErrInvalidAlias),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, validation.ErrInvalidPatch):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})

	case errors.As(err, &upstream):
		log.WithContext(c.Request().Context()).Warn("order platform request failed",
			"status", upstream.StatusCode,
			"error", err,
		)
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":           "order platform request failed",
			"upstream_status": upstream.StatusCode,
			"upstream_body":   upstream.Body,
		})
	}

	log.WithContext(c.Request().Context()).Error("request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": "internal server error",
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error": msg,
	})
}
