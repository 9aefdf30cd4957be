package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/ratelimit"
	"github.com/labstack/echo/v4"
)

// OrganizationLimiter counts requests against a tenant budget
type OrganizationLimiter interface {
	CheckOrganizationLimit(ctx context.Context, orgID string, limit int64) (*ratelimit.RateLimitResult, error)
}

// OrganizationRateLimit enforces a per-organization request budget.
// The organization is read with orgOf; requests without one pass through.
// Limiter errors fail open.
func OrganizationRateLimit(limiter OrganizationLimiter, limit int64, orgOf func(echo.Context) string, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			orgID := orgOf(c)
			if orgID == "" || limit <= 0 {
				return next(c)
			}

			result, err := limiter.CheckOrganizationLimit(c.Request().Context(), orgID, limit)
			if err != nil {
				log.Warn("rate limit check failed, allowing request", "organization_id", orgID, "error", err)
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limit_exceeded",
					"message": "Organization request quota exceeded. Please wait before trying again.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window_seconds":      ratelimit.DefaultWindowSeconds,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
