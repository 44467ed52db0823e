package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

type CouponResult struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
}

func (s *Service) CreateCoupon(ctx context.Context, c models.Coupon) (models.Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" {
		return models.Coupon{}, validationf("code is required")
	}
	if !c.Discount.IsPositive() {
		return models.Coupon{}, validationf("discount must be positive")
	}
	if c.Type == models.CouponTypePercentage && c.Discount.GreaterThan(hundred) {
		return models.Coupon{}, validationf("percentage discount cannot exceed 100")
	}
	if c.Type != models.CouponTypePercentage && c.Type != models.CouponTypeFlat {
		return models.Coupon{}, validationf("type must be percentage or flat")
	}
	if !c.ValidUntil.After(c.ValidFrom) {
		return models.Coupon{}, validationf("valid_until must be after valid_from")
	}
	if c.UsageLimit < 0 || c.MinPurchase.IsNegative() {
		return models.Coupon{}, validationf("usage_limit and min_purchase cannot be negative")
	}
	if c.Status == "" {
		c.Status = models.CouponStatusActive
	}
	now := s.now()
	c.UsedCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.CreateCoupon(ctx, &c); err != nil {
		return models.Coupon{}, storeErr(err, "coupon")
	}
	return c, nil
}

func (s *Service) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.store.ListCoupons(ctx)
	return coupons, storeErr(err, "coupons")
}

// ValidateCoupon previews a coupon without consuming it.
func (s *Service) ValidateCoupon(ctx context.Context, code string, finalPrice decimal.Decimal) (CouponResult, error) {
	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		return CouponResult{}, storeErr(err, "coupon")
	}
	discount, discounted, err := ApplyCoupon(coupon, finalPrice, s.now())
	if err != nil {
		return CouponResult{}, err
	}
	return CouponResult{Code: coupon.Code, DiscountAmount: discount, FinalPrice: discounted}, nil
}

// RedeemCoupon validates the coupon and consumes one use atomically.
func (s *Service) RedeemCoupon(ctx context.Context, code string, finalPrice decimal.Decimal) (CouponResult, error) {
	res, err := s.ValidateCoupon(ctx, code, finalPrice)
	if err != nil {
		return CouponResult{}, err
	}
	if _, err := s.store.RedeemCoupon(ctx, res.Code, s.now()); err != nil {
		return CouponResult{}, storeErr(err, "coupon")
	}
	return res, nil
}
