package models

import (
	"time"

	"github.com/google/uuid"
)

// ShipmentStatusShipped marks a shipment that already left the warehouse
const ShipmentStatusShipped = "shipped"

// Shipment is a box shipment record
// Maps to: shipments table, unique on (organization_id, platform_order_id)
type Shipment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	OrganizationID  uuid.UUID `db:"organization_id" json:"organization_id"`
	SubscriberID    uuid.UUID `db:"subscriber_id" json:"subscriber_id"`
	PlatformOrderID string    `db:"platform_order_id" json:"platform_order_id"`
	OrderNumber     string    `db:"order_number" json:"order_number"`
	SequenceNumber  int       `db:"sequence_number" json:"sequence_number"`
	ProductName     string    `db:"product_name" json:"product_name"`
	SKU             string    `db:"sku" json:"sku"`
	Status          string    `db:"status" json:"status"`
	IsBackfilled    bool      `db:"is_backfilled" json:"is_backfilled"`
	ShippedAt       time.Time `db:"shipped_at" json:"shipped_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
