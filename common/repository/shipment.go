package repository

import (
	"context"
	"fmt"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// ShipmentRepository handles database operations for shipments
type ShipmentRepository struct {
	db *db.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(database *db.DB) *ShipmentRepository {
	return &ShipmentRepository{db: database}
}

// ExistsByOrder reports whether a shipment already exists for the platform order
func (r *ShipmentRepository) ExistsByOrder(ctx context.Context, orgID uuid.UUID, platformOrderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shipments WHERE organization_id = $1 AND platform_order_id = $2
		)
	`, orgID, platformOrderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check shipment: %w", err)
	}
	return exists, nil
}

// InsertIfAbsent inserts the shipment unless one exists for (organization, order).
// Returns true when a row was written.
func (r *ShipmentRepository) InsertIfAbsent(ctx context.Context, s *models.Shipment) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO shipments (id, organization_id, subscriber_id, platform_order_id, order_number,
			sequence_number, product_name, sku, status, is_backfilled, shipped_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (organization_id, platform_order_id) DO NOTHING
	`,
		s.ID,
		s.OrganizationID,
		s.SubscriberID,
		s.PlatformOrderID,
		s.OrderNumber,
		s.SequenceNumber,
		s.ProductName,
		s.SKU,
		s.Status,
		s.IsBackfilled,
		s.ShippedAt,
		s.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert shipment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
