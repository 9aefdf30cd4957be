package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/boxops/portal/common/db"
	"github.com/boxops/portal/common/models"
	"github.com/google/uuid"
)

// SkuAliasRepository stores the tenant-configured SKU to sequence mapping
type SkuAliasRepository struct {
	db *db.DB
}

// NewSkuAliasRepository creates a new SKU alias repository
func NewSkuAliasRepository(database *db.DB) *SkuAliasRepository {
	return &SkuAliasRepository{db: database}
}

// ListByOrganization returns all aliases of an organization, oldest update first
func (r *SkuAliasRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error) {
	rows, err := r.db.Query(ctx, `
		SELECT organization_id, sku, sequence_number, updated_at
		FROM sku_aliases
		WHERE organization_id = $1
		ORDER BY updated_at, sku
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sku aliases: %w", err)
	}
	defer rows.Close()

	aliases := make([]models.SkuAlias, 0)
	for rows.Next() {
		var a models.SkuAlias
		if err := rows.Scan(&a.OrganizationID, &a.SKU, &a.SequenceNumber, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sku alias: %w", err)
		}
		aliases = append(aliases, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sku aliases: %w", err)
	}

	return aliases, nil
}

// Upsert stores an alias, lowercasing the SKU so lookups stay case-insensitive
func (r *SkuAliasRepository) Upsert(ctx context.Context, alias *models.SkuAlias) error {
	alias.SKU = strings.ToLower(strings.TrimSpace(alias.SKU))

	err := r.db.QueryRow(ctx, `
		INSERT INTO sku_aliases (organization_id, sku, sequence_number, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (organization_id, sku)
		DO UPDATE SET sequence_number = EXCLUDED.sequence_number, updated_at = now()
		RETURNING updated_at
	`, alias.OrganizationID, alias.SKU, alias.SequenceNumber).Scan(&alias.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert sku alias: %w", err)
	}
	return nil
}
