package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boxops/portal/cmd/audit-worker/consumer"
	"github.com/boxops/portal/cmd/portal/container"
	"github.com/boxops/portal/common/bootstrap"
	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/server"
	"github.com/boxops/portal/common/worker"
	"github.com/labstack/echo/v4"
)

const (
	serviceName = "audit-worker"

	// How long a processed payment event ID is remembered
	eventClaimTTL = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Setup(ctx, serviceName, bootstrap.WithDBInitHook(db.Migrate))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap %s: %v\n", serviceName, err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	if components.Queue == nil {
		components.Logger.Error("queue is required")
		os.Exit(1)
	}

	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	// Claims are shared across replicas when Redis is available. A nil
	// *redis.Client must stay a nil ClaimStore, hence the explicit branch.
	var store worker.ClaimStore
	if components.Redis != nil {
		store = components.Redis
	}
	claims := worker.NewDeduper(store, "payment_event:", eventClaimTTL)

	payments := consumer.NewPaymentConsumer(serviceContainer.Reauditor, claims, components.Logger)
	if err := payments.Start(ctx, components.Queue, components.Config.Audit.ReauditTopic); err != nil {
		components.Logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}

	// Liveness endpoint
	e := echo.New()
	e.HideBanner = true
	e.GET("/health", server.NewHealthHandler(serviceName, components).Health)

	srv := server.New(serviceName, components.Config.Service.Port, e, components.Config.Service.ShutdownTimeout, components.Logger)
	if err := srv.Run(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
	}
}
