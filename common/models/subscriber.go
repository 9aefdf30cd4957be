package models

import (
	"time"

	"github.com/google/uuid"
)

// MigrationStatus tracks where a subscriber is in the audit workflow
type MigrationStatus string

const (
	MigrationUnaudited MigrationStatus = "unaudited"
	MigrationAudited   MigrationStatus = "audited"
	MigrationFlagged   MigrationStatus = "flagged"
	MigrationResolved  MigrationStatus = "resolved"
)

// Subscriber is a box subscriber of an organization
// Maps to: subscribers table
type Subscriber struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OrganizationID     uuid.UUID `db:"organization_id" json:"organization_id"`
	PlatformCustomerID string    `db:"platform_customer_id" json:"platform_customer_id,omitempty"`
	Email              string    `db:"email" json:"email,omitempty"`

	// Last sequence number actually shipped
	CurrentProductSequence int `db:"current_product_sequence" json:"current_product_sequence"`

	MigrationStatus MigrationStatus `db:"migration_status" json:"migration_status"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
