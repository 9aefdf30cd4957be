package container

import (
	"fmt"

	"github.com/boxops/portal/common/bootstrap"
	"github.com/boxops/portal/common/clients"
	"github.com/boxops/portal/common/lock"
	"github.com/boxops/portal/common/ratelimit"
	"github.com/boxops/portal/common/repository"
	"github.com/boxops/portal/common/service"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	AuditLogRepo    *repository.AuditLogRepository
	SubscriberRepo  *repository.SubscriberRepository
	ShipmentRepo    *repository.ShipmentRepository
	SkuAliasRepo    *repository.SkuAliasRepository
	MigrationRepo   *repository.MigrationRepository
	IntegrationRepo *repository.IntegrationRepository

	// Nil when Redis is disabled
	RateLimiter *ratelimit.RateLimiter

	// Services
	OrderSource      *clients.ShopifyOrderSource
	SkuMapService    *service.SkuMapService
	BackfillService  *service.BackfillService
	AuditService     *service.AuditService
	MigrationService *service.MigrationService
	Reauditor        *service.Reauditor
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	cfg := components.Config
	log := components.Logger

	// Initialize repositories
	auditLogRepo := repository.NewAuditLogRepository(components.DB)
	subscriberRepo := repository.NewSubscriberRepository(components.DB)
	shipmentRepo := repository.NewShipmentRepository(components.DB)
	skuAliasRepo := repository.NewSkuAliasRepository(components.DB)
	migrationRepo := repository.NewMigrationRepository(components.DB)
	integrationRepo := repository.NewIntegrationRepository(components.DB)

	// Shared Redis primitives, in-process fallbacks otherwise
	var rateLimiter *ratelimit.RateLimiter
	var locker lock.Locker = lock.NewLocalLocker()
	sourceOpts := []clients.ShopifyOption{}
	if components.Redis != nil {
		rateLimiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
		locker = lock.NewRedisLocker(components.Redis.GetUnderlying())
		sourceOpts = append(sourceOpts, clients.WithShopLimiter(rateLimiter))
	} else if cfg.Shopify.ShopQuotaPerMinute > 0 {
		log.Warn("redis disabled, shop quota is not enforced")
	}

	// Initialize services (bottom-up: dependencies first)
	orderSource := clients.NewShopifyOrderSource(integrationRepo, cfg.Shopify, log, sourceOpts...)
	skuMapService := service.NewSkuMapService(skuAliasRepo, components.Cache, cfg.Cache.DefaultTTL, log)
	backfillService := service.NewBackfillService(shipmentRepo, log)
	auditService := service.NewAuditService(
		orderSource,
		skuMapService,
		auditLogRepo,
		subscriberRepo,
		backfillService,
		locker,
		cfg.Audit.LockTTL,
		log,
	)

	filter, err := service.NewSubscriberFilter()
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriber filter: %w", err)
	}
	migrationService := service.NewMigrationService(
		migrationRepo,
		subscriberRepo,
		auditService,
		filter,
		cfg.Audit.Concurrency,
		log,
	)

	reauditor := service.NewReauditor(subscriberRepo, auditService, log)

	return &Container{
		Components:       components,
		AuditLogRepo:     auditLogRepo,
		SubscriberRepo:   subscriberRepo,
		ShipmentRepo:     shipmentRepo,
		SkuAliasRepo:     skuAliasRepo,
		MigrationRepo:    migrationRepo,
		IntegrationRepo:  integrationRepo,
		RateLimiter:      rateLimiter,
		OrderSource:      orderSource,
		SkuMapService:    skuMapService,
		BackfillService:  backfillService,
		AuditService:     auditService,
		MigrationService: migrationService,
		Reauditor:        reauditor,
	}, nil
}
