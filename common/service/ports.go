package service

import (
	"context"

	"github.com/boxops/portal/common/audit"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// OrderHistorySource returns the full order history of a platform customer
type OrderHistorySource interface {
	FetchOrders(ctx context.Context, orgID uuid.UUID, lookup models.CustomerLookup) (*models.OrderHistory, error)
}

// SkuMapSource returns the SKU to sequence mapping of an organization
type SkuMapSource interface {
	ForOrganization(ctx context.Context, orgID uuid.UUID) (audit.SkuMap, error)
}

// AuditLogStore persists audit logs. Resolve is the only mutation.
type AuditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit int) ([]*models.AuditLog, error)
	ListByMigration(ctx context.Context, migrationID uuid.UUID, limit int) ([]*models.AuditLog, error)
	Resolve(ctx context.Context, id uuid.UUID, res models.Resolution) (*models.AuditLog, error)
	CountByStatus(ctx context.Context, orgID uuid.UUID, migrationID *uuid.UUID) (map[models.AuditLogStatus]int, error)
}

// SubscriberStore reads subscribers and writes their sequence and migration status
type SubscriberStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Subscriber, error)
	UpdateSequence(ctx context.Context, id uuid.UUID, currentSequence int, status models.MigrationStatus) error
	UpdateMigrationStatus(ctx context.Context, id uuid.UUID, status models.MigrationStatus) error
}

// ShipmentStore writes shipment records idempotently per (organization, order)
type ShipmentStore interface {
	ExistsByOrder(ctx context.Context, orgID uuid.UUID, platformOrderID string) (bool, error)
	InsertIfAbsent(ctx context.Context, s *models.Shipment) (bool, error)
}

// MigrationStore persists batch audit runs
type MigrationStore interface {
	Create(ctx context.Context, run *models.MigrationRun) error
	Complete(ctx context.Context, run *models.MigrationRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MigrationRun, error)
}

// SkuAliasStore persists tenant SKU aliases
type SkuAliasStore interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error)
	Upsert(ctx context.Context, alias *models.SkuAlias) error
}
