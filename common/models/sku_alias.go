package models

import (
	"time"

	"github.com/google/uuid"
)

// SkuAlias maps a platform SKU to the box sequence number it ships
// Maps to: sku_aliases table, unique on (organization_id, sku)
type SkuAlias struct {
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	SKU            string    `db:"sku" json:"sku" validate:"required,max=128"`
	SequenceNumber int       `db:"sequence_number" json:"sequence_number" validate:"required,gte=1"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
