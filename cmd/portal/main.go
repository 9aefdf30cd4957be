package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boxops/portal/cmd/portal/container"
	"github.com/boxops/portal/cmd/portal/handlers"
	portalmw "github.com/boxops/portal/cmd/portal/middleware"
	"github.com/boxops/portal/cmd/portal/routes"
	"github.com/boxops/portal/common/bootstrap"
	"github.com/boxops/portal/common/db"
	commonmw "github.com/boxops/portal/common/middleware"
	"github.com/boxops/portal/common/server"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const serviceName = "portal"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap common components (DB, redis, logger, queue, cache, telemetry)
	components, err := bootstrap.Setup(ctx, serviceName, bootstrap.WithDBInitHook(db.Migrate))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap %s: %v\n", serviceName, err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	srv := server.New(serviceName, components.Config.Service.Port, e, components.Config.Service.ShutdownTimeout, components.Logger)
	if err := srv.Run(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
	}

	// Let background migration runs record their totals before the pool closes
	components.Logger.Info("waiting for migration runs")
	serviceContainer.MigrationService.Wait()
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(portalmw.RequestContext())
	e.Use(middleware.Logger())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	h := server.NewHealthHandler(serviceName, components)
	e.GET("/health", h.Health)
}

// registerRoutes registers all tenant API routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	log := c.Components.Logger

	api := e.Group("/api/v1", portalmw.RequireOrganization(), portalmw.ExtractUser())
	if c.RateLimiter != nil && c.Components.Config.Service.APIRateLimitPerMinute > 0 {
		api.Use(commonmw.OrganizationRateLimit(
			c.RateLimiter,
			c.Components.Config.Service.APIRateLimitPerMinute,
			portalmw.OrganizationIDString,
			log,
		))
	}

	routes.RegisterAuditRoutes(api, handlers.NewAuditHandler(c.AuditService, c.Components.Config.Audit.DefaultLimit, log))
	routes.RegisterMigrationRoutes(api, handlers.NewMigrationHandler(c.MigrationService, log))
	routes.RegisterSkuAliasRoutes(api, handlers.NewSkuAliasHandler(c.SkuMapService, log))
}
