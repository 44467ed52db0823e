package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CouponTypePercentage = "percentage"
	CouponTypeFlat       = "flat"

	CouponStatusActive   = "active"
	CouponStatusInactive = "inactive"
)

type Coupon struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code        string             `bson:"code" json:"code" binding:"required"`
	Discount    decimal.Decimal    `bson:"discount" json:"discount"`
	Type        string             `bson:"type" json:"type" binding:"required,oneof=percentage flat"`
	ValidFrom   time.Time          `bson:"valid_from" json:"valid_from"`
	ValidUntil  time.Time          `bson:"valid_until" json:"valid_until"`
	UsageLimit  int                `bson:"usage_limit" json:"usage_limit"`
	UsedCount   int                `bson:"used_count" json:"used_count"`
	MinPurchase decimal.Decimal    `bson:"min_purchase" json:"min_purchase"`
	Status      string             `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// Exhausted reports whether the usage limit has been reached. A zero limit is unlimited.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit
}
