package service

import (
	"context"
	"testing"
	"time"

	"github.com/boxops/portal/common/cache"
	"github.com/boxops/portal/common/logger"
	"github.com/boxops/portal/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkuMapService_CachesUntilInvalidated(t *testing.T) {
	aliases := &fakeAliases{aliases: []models.SkuAlias{
		{OrganizationID: testOrg, SKU: "box-1", SequenceNumber: 1},
	}}
	c := cache.NewMemoryCache(logger.Discard())
	defer c.Close()
	svc := NewSkuMapService(aliases, c, time.Minute, logger.Discard())

	m, err := svc.ForOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	seq, ok := m.Lookup("BOX-1")
	assert.True(t, ok)
	assert.Equal(t, 1, seq)

	_, err = svc.ForOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	assert.Equal(t, 1, aliases.reads)

	require.NoError(t, svc.UpsertAlias(context.Background(), &models.SkuAlias{
		OrganizationID: testOrg, SKU: "BOX-2", SequenceNumber: 2,
	}))

	m, err = svc.ForOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	assert.Equal(t, 2, aliases.reads)
	_, ok = m.Lookup("box-2")
	assert.True(t, ok)
}

func TestSkuMapService_WithoutCache(t *testing.T) {
	aliases := &fakeAliases{}
	svc := NewSkuMapService(aliases, nil, time.Minute, logger.Discard())

	_, err := svc.ForOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	_, err = svc.ForOrganization(context.Background(), testOrg)
	require.NoError(t, err)
	assert.Equal(t, 2, aliases.reads)
	assert.NoError(t, svc.Invalidate(context.Background(), testOrg))
}

func TestSkuMapService_RejectsInvalidAlias(t *testing.T) {
	aliases := &fakeAliases{}
	svc := NewSkuMapService(aliases, nil, time.Minute, logger.Discard())

	err := svc.UpsertAlias(context.Background(), &models.SkuAlias{OrganizationID: testOrg, SKU: "", SequenceNumber: 1})
	assert.ErrorIs(t, err, ErrInvalidAlias)

	err = svc.UpsertAlias(context.Background(), &models.SkuAlias{OrganizationID: testOrg, SKU: "BOX-1", SequenceNumber: 0})
	assert.ErrorIs(t, err, ErrInvalidAlias)

	assert.Empty(t, aliases.aliases)
}
