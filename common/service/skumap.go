package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boxops/portal/common/audit"
	"github.com/boxops/portal/common/cache"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SkuMapService serves organization SKU maps, cached between audits
type SkuMapService struct {
	aliases  SkuAliasStore
	cache    cache.Cache
	ttl      time.Duration
	validate *validator.Validate
	log      *logger.Logger
}

// NewSkuMapService creates a new SKU map service. cache may be nil.
func NewSkuMapService(aliases SkuAliasStore, c cache.Cache, ttl time.Duration, log *logger.Logger) *SkuMapService {
	return &SkuMapService{
		aliases:  aliases,
		cache:    c,
		ttl:      ttl,
		validate: validator.New(),
		log:      log,
	}
}

func skuMapCacheKey(orgID uuid.UUID) string {
	return "skumap:" + orgID.String()
}

// ForOrganization returns the SKU map of an organization
func (s *SkuMapService) ForOrganization(ctx context.Context, orgID uuid.UUID) (audit.SkuMap, error) {
	key := skuMapCacheKey(orgID)

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("sku map cache read failed", "organization_id", orgID, "error", err)
		} else if ok {
			var m audit.SkuMap
			if err := json.Unmarshal(raw, &m); err == nil {
				return m, nil
			}
			s.log.Warn("discarding corrupt sku map cache entry", "organization_id", orgID)
		}
	}

	aliases, err := s.aliases.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sku aliases: %w", err)
	}
	m := audit.NewSkuMap(aliases)

	if s.cache != nil {
		raw, err := json.Marshal(m)
		if err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.log.Warn("sku map cache write failed", "organization_id", orgID, "error", err)
			}
		}
	}

	return m, nil
}

// Aliases lists the configured aliases of an organization
func (s *SkuMapService) Aliases(ctx context.Context, orgID uuid.UUID) ([]models.SkuAlias, error) {
	return s.aliases.ListByOrganization(ctx, orgID)
}

// UpsertAlias validates and stores an alias, then drops the cached map
func (s *SkuMapService) UpsertAlias(ctx context.Context, alias *models.SkuAlias) error {
	if err := s.validate.Struct(alias); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlias, err)
	}

	if err := s.aliases.Upsert(ctx, alias); err != nil {
		return fmt.Errorf("failed to store sku alias: %w", err)
	}

	return s.Invalidate(ctx, alias.OrganizationID)
}

// Invalidate drops the cached map of an organization
func (s *SkuMapService) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, skuMapCacheKey(orgID))
}
