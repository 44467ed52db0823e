package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// AdCommission splits totalCost into the platform cut and the per-reporter share.
func AdCommission(totalCost, commissionPct decimal.Decimal, requiredReporter int) (adminCommission, finalReporterPrice decimal.Decimal, err error) {
	if requiredReporter < 1 {
		return decimal.Zero, decimal.Zero, validationf("required reporter count must be at least 1")
	}
	adminCommission = totalCost.Mul(commissionPct).Div(hundred).Round(2)
	finalReporterPrice = totalCost.Sub(adminCommission).
		Div(decimal.NewFromInt(int64(requiredReporter))).
		Round(2)
	return adminCommission, finalReporterPrice, nil
}

// PaidConferenceCommission computes the commission details stored on approval.
func PaidConferenceCommission(paymentAmount, commissionPct decimal.Decimal, numberOfReporters int, at time.Time) (models.CommissionDetails, error) {
	if numberOfReporters < 1 {
		return models.CommissionDetails{}, validationf("number_of_reporters must be at least 1")
	}
	commission := paymentAmount.Mul(commissionPct).Div(hundred).Round(2)
	return models.CommissionDetails{
		CommissionPercentage: commissionPct,
		CommissionAmount:     commission,
		AmountPerReporter: paymentAmount.Sub(commission).
			Div(decimal.NewFromInt(int64(numberOfReporters))).
			Round(2),
		CalculatedAt: at,
	}, nil
}

// ApplyCoupon validates coupon against finalPrice at now and returns the
// discount and the discounted price. It never touches usage counters.
func ApplyCoupon(coupon models.Coupon, finalPrice decimal.Decimal, now time.Time) (discount, discounted decimal.Decimal, err error) {
	switch {
	case coupon.Status != models.CouponStatusActive:
		return decimal.Zero, finalPrice, fmt.Errorf("%w: coupon is inactive", ErrCouponInvalid)
	case now.Before(coupon.ValidFrom):
		return decimal.Zero, finalPrice, fmt.Errorf("%w: coupon is not valid yet", ErrCouponInvalid)
	case now.After(coupon.ValidUntil):
		return decimal.Zero, finalPrice, fmt.Errorf("%w: coupon has expired", ErrCouponInvalid)
	case coupon.Exhausted():
		return decimal.Zero, finalPrice, fmt.Errorf("%w: coupon usage limit reached", ErrCouponInvalid)
	case finalPrice.LessThan(coupon.MinPurchase):
		return decimal.Zero, finalPrice, fmt.Errorf("%w: minimum purchase is %s", ErrCouponInvalid, coupon.MinPurchase)
	}

	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = finalPrice.Mul(coupon.Discount).Div(hundred).Round(2)
	case models.CouponTypeFlat:
		discount = decimal.Min(coupon.Discount, finalPrice)
	default:
		return decimal.Zero, finalPrice, fmt.Errorf("%w: unknown coupon type %q", ErrCouponInvalid, coupon.Type)
	}
	if discount.GreaterThan(finalPrice) {
		discount = finalPrice
	}
	return discount, finalPrice.Sub(discount), nil
}

// ShortfallRefund is the submitter's refund for slots nobody completed.
func ShortfallRefund(numberOfReporters, completed int, amountPerReporter decimal.Decimal) decimal.Decimal {
	missing := numberOfReporters - completed
	if missing <= 0 {
		return decimal.Zero
	}
	return amountPerReporter.Mul(decimal.NewFromInt(int64(missing)))
}

// Deterministic correlation ids keep every settlement credit idempotent.

func adPayoutRef(adID, reporterID primitive.ObjectID) string {
	return fmt.Sprintf("ad:%s:payout:%s", adID.Hex(), reporterID.Hex())
}

func adRefundRef(adID primitive.ObjectID) string {
	return fmt.Sprintf("ad:%s:refund", adID.Hex())
}

func adPaymentRef(adID primitive.ObjectID) string {
	return fmt.Sprintf("ad:%s:payment", adID.Hex())
}

func paidPayoutRef(confID, reporterID primitive.ObjectID) string {
	return fmt.Sprintf("paid-conference:%s:payout:%s", confID.Hex(), reporterID.Hex())
}

func paidRefundRef(confID primitive.ObjectID) string {
	return fmt.Sprintf("paid-conference:%s:refund", confID.Hex())
}

func paidPaymentRef(confID primitive.ObjectID) string {
	return fmt.Sprintf("paid-conference:%s:payment", confID.Hex())
}
