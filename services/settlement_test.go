package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func TestApplyCoupon(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	valid := models.Coupon{
		Status:      models.CouponStatusActive,
		ValidFrom:   now.Add(-time.Hour),
		ValidUntil:  now.Add(time.Hour),
		MinPurchase: decimal.NewFromInt(100),
	}

	tests := []struct {
		name         string
		mutate       func(c *models.Coupon)
		price        int64
		wantDiscount string
		wantFinal    string
		wantErr      error
	}{
		{
			name: "percentage",
			mutate: func(c *models.Coupon) {
				c.Code, c.Type, c.Discount = "SAVE10", models.CouponTypePercentage, decimal.NewFromInt(10)
			},
			price:        500,
			wantDiscount: "50",
			wantFinal:    "450",
		},
		{
			name: "flat discount is capped at the price",
			mutate: func(c *models.Coupon) {
				c.Type, c.Discount = models.CouponTypeFlat, decimal.NewFromInt(1000)
			},
			price:        500,
			wantDiscount: "500",
			wantFinal:    "0",
		},
		{
			name: "below minimum purchase",
			mutate: func(c *models.Coupon) {
				c.Type, c.Discount = models.CouponTypeFlat, decimal.NewFromInt(10)
			},
			price:   50,
			wantErr: ErrCouponInvalid,
		},
		{
			name: "expired",
			mutate: func(c *models.Coupon) {
				c.Type, c.Discount = models.CouponTypeFlat, decimal.NewFromInt(10)
				c.ValidUntil = now.Add(-time.Minute)
			},
			price:   500,
			wantErr: ErrCouponInvalid,
		},
		{
			name: "usage limit reached",
			mutate: func(c *models.Coupon) {
				c.Type, c.Discount = models.CouponTypeFlat, decimal.NewFromInt(10)
				c.UsageLimit, c.UsedCount = 3, 3
			},
			price:   500,
			wantErr: ErrCouponInvalid,
		},
		{
			name: "inactive",
			mutate: func(c *models.Coupon) {
				c.Type, c.Discount = models.CouponTypeFlat, decimal.NewFromInt(10)
				c.Status = models.CouponStatusInactive
			},
			price:   500,
			wantErr: ErrCouponInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			c := valid
			tt.mutate(&c)

			discount, final, err := ApplyCoupon(c, decimal.NewFromInt(tt.price), now)
			if tt.wantErr != nil {
				require.ErrorIs(err, tt.wantErr)
				require.ErrorIs(err, ErrValidation)
				return
			}
			require.NoError(err)
			requireDecimal(t, tt.wantDiscount, discount)
			requireDecimal(t, tt.wantFinal, final)
			require.False(final.IsNegative())
		})
	}
}

func TestAdCommission(t *testing.T) {
	require := require.New(t)

	require.Equal(5, RequiredReporters(5000, 1000))
	require.Equal(6, RequiredReporters(5001, 1000))
	require.Equal(0, RequiredReporters(5000, 0))

	admin, perReporter, err := AdCommission(decimal.NewFromInt(1000), decimal.NewFromInt(70), 5)
	require.NoError(err)
	requireDecimal(t, "700", admin)
	requireDecimal(t, "60", perReporter)

	_, _, err = AdCommission(decimal.NewFromInt(1000), decimal.NewFromInt(70), 0)
	require.ErrorIs(err, ErrValidation)
}

func TestPaidConferenceCommissionAndShortfall(t *testing.T) {
	require := require.New(t)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	details, err := PaidConferenceCommission(decimal.NewFromInt(900), decimal.NewFromInt(10), 3, at)
	require.NoError(err)
	requireDecimal(t, "90", details.CommissionAmount)
	requireDecimal(t, "270", details.AmountPerReporter)
	require.Equal(at, details.CalculatedAt)

	requireDecimal(t, "270", ShortfallRefund(3, 2, details.AmountPerReporter))
	requireDecimal(t, "0", ShortfallRefund(3, 3, details.AmountPerReporter))
	requireDecimal(t, "0", ShortfallRefund(3, 4, details.AmountPerReporter))
}

func TestQuoteAd(t *testing.T) {
	require := require.New(t)

	cfg := testPricing()
	cfg.GSTRate = decimal.NewFromInt(18)
	cfg.PerSecPrice = decimal.NewFromInt(2)
	cfg.PerDayPrice = decimal.NewFromInt(50)
	cfg.PerCityPrice = decimal.NewFromInt(25)

	q, err := QuoteAd(cfg, AdQuoteInput{AdType: "video", RequiredViews: 2500, AdLength: 10, Days: 2, Cities: 2})
	require.NoError(err)
	require.Equal(3, q.RequiredReporter)
	// (200 + 2*10) * 3 + 50*2 + 25*2
	requireDecimal(t, "810", q.Subtotal)
	requireDecimal(t, "145.8", q.GST)
	requireDecimal(t, "955.8", q.Total)

	_, err = QuoteAd(cfg, AdQuoteInput{AdType: "banner", RequiredViews: 1000, AdLength: 10})
	require.ErrorIs(err, ErrValidation)
	_, err = QuoteAd(cfg, AdQuoteInput{AdType: "video", RequiredViews: 1000, AdLength: 120})
	require.ErrorIs(err, ErrValidation)
}

func TestSetPricingValidates(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	cfg := testPricing()
	cfg.AdCommission = decimal.NewFromInt(120)
	_, err := f.svc.SetPricing(t.Context(), cfg)
	require.ErrorIs(err, ErrValidation)

	cfg = testPricing()
	cfg.BaseView = 500
	_, err = f.svc.SetPricing(t.Context(), cfg)
	require.NoError(err)

	got, err := f.svc.Pricing(t.Context())
	require.NoError(err)
	require.Equal(int64(500), got.BaseView)
}
