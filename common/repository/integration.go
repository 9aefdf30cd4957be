package repository

import (
	"context"
	"fmt"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// IntegrationRepository reads per-organization platform credentials
type IntegrationRepository struct {
	db *db.DB
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(database *db.DB) *IntegrationRepository {
	return &IntegrationRepository{db: database}
}

// GetShopifyCredentials returns the shop domain and token of an organization
func (r *IntegrationRepository) GetShopifyCredentials(ctx context.Context, orgID uuid.UUID) (*models.ShopifyCredentials, error) {
	creds := &models.ShopifyCredentials{}
	err := r.db.QueryRow(ctx, `
		SELECT organization_id, shop_domain, access_token
		FROM organization_integrations
		WHERE organization_id = $1
	`, orgID).Scan(&creds.OrganizationID, &creds.ShopDomain, &creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get shopify credentials: %w", notFound(err))
	}
	return creds, nil
}
