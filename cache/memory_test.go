package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func TestMemoryIdempotencyClaimOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore()
	s.now = func() time.Time { return now }

	fresh, err := s.Claim(ctx, "proof:abc", time.Hour)
	require.NoError(err)
	require.True(fresh)

	fresh, err = s.Claim(ctx, "proof:abc", time.Hour)
	require.NoError(err)
	require.False(fresh)

	now = now.Add(2 * time.Hour)
	fresh, err = s.Claim(ctx, "proof:abc", time.Hour)
	require.NoError(err)
	require.True(fresh, "expired keys can be claimed again")

	require.NoError(s.Release(ctx, "proof:abc"))
	fresh, err = s.Claim(ctx, "proof:abc", time.Hour)
	require.NoError(err)
	require.True(fresh)
}

func TestMemoryPricingCacheExpiry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryPricingCache()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx)
	require.NoError(err)
	require.False(ok)

	cfg := models.PricingConfig{ID: models.PricingConfigID, BaseView: 1000, GSTRate: decimal.NewFromInt(18)}
	require.NoError(c.Put(ctx, cfg, time.Minute))

	got, ok, err := c.Get(ctx)
	require.NoError(err)
	require.True(ok)
	require.Equal(int64(1000), got.BaseView)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx)
	require.NoError(err)
	require.False(ok)

	require.NoError(c.Put(ctx, cfg, time.Minute))
	require.NoError(c.Invalidate(ctx))
	_, ok, err = c.Get(ctx)
	require.NoError(err)
	require.False(ok)
}
