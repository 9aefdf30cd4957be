package middleware

import (
	"context"
	"net/http"

	"github.com/boxops/portal/common/clients"
	"github.com/boxops/portal/common/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OrganizationKey holds the tenant uuid.UUID from X-Organization-ID
	OrganizationKey ContextKey = "organization_id"

	// UserKey holds the caller identity from X-User-ID
	UserKey ContextKey = "user_id"
)

// RequireOrganization parses the X-Organization-ID header. Every tenant API
// route needs it.
func RequireOrganization() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-Organization-ID")
			if raw == "" {
				return c.JSON(http.StatusBadRequest, map[string]interface{}{
					"error": "X-Organization-ID header is required",
				})
			}

			orgID, err := uuid.Parse(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]interface{}{
					"error": "X-Organization-ID must be a UUID",
				})
			}

			c.Set(string(OrganizationKey), orgID)
			return next(c)
		}
	}
}

// ExtractUser stores X-User-ID when present
func ExtractUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if user := c.Request().Header.Get("X-User-ID"); user != "" {
				c.Set(string(UserKey), user)
				req := c.Request()
				c.SetRequest(req.WithContext(clients.WithUserID(req.Context(), user)))
			}
			return next(c)
		}
	}
}

// RequestContext copies the echo request ID into the request context so
// logger.WithContext picks it up
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				req := c.Request()
				ctx := context.WithValue(req.Context(), logger.RequestIDKey, id)
				c.SetRequest(req.WithContext(clients.WithRequestID(ctx, id)))
			}
			return next(c)
		}
	}
}

// GetOrganizationID returns the tenant set by RequireOrganization
func GetOrganizationID(c echo.Context) uuid.UUID {
	orgID, _ := c.Get(string(OrganizationKey)).(uuid.UUID)
	return orgID
}

// OrganizationIDString is GetOrganizationID for keyed middleware, empty when unset
func OrganizationIDString(c echo.Context) string {
	orgID := GetOrganizationID(c)
	if orgID == uuid.Nil {
		return ""
	}
	return orgID.String()
}

// GetUserID returns X-User-ID, or empty string if not set
func GetUserID(c echo.Context) string {
	user, _ := c.Get(string(UserKey)).(string)
	return user
}
