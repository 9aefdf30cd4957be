package models

import "github.com/google/uuid"

// ShopifyCredentials holds what is needed to call the Admin API for a tenant
// Maps to: organization_integrations table
type ShopifyCredentials struct {
	OrganizationID uuid.UUID `db:"organization_id"`
	ShopDomain     string    `db:"shop_domain"`
	AccessToken    string    `db:"access_token"`
}
