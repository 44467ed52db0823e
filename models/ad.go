package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AdStatus string

const (
	AdStatusPending   AdStatus = "pending"
	AdStatusApproved  AdStatus = "approved"
	AdStatusRejected  AdStatus = "rejected"
	AdStatusModified  AdStatus = "modified"
	AdStatusRunning   AdStatus = "running"
	AdStatusCompleted AdStatus = "completed"
)

// Open reports whether reporters may still accept the ad.
func (s AdStatus) Open() bool {
	return s == AdStatusApproved || s == AdStatusModified
}

const (
	PaymentMethodWallet  = "wallet"
	PaymentMethodGateway = "gateway"
)

type AdCompletion struct {
	CompletedReporters int             `bson:"completed_reporters" json:"completed_reporters"`
	TotalPaid          decimal.Decimal `bson:"total_paid" json:"total_paid"`
	RefundAmount       decimal.Decimal `bson:"refund_amount" json:"refund_amount"`
	CompletedAt        time.Time       `bson:"completed_at" json:"completed_at"`
}

type Advertisement struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID       primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	AdType        string             `bson:"ad_type" json:"ad_type"`
	ChannelType   string             `bson:"channel_type,omitempty" json:"channel_type,omitempty"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	RequiredViews int64              `bson:"required_views" json:"required_views"`
	AdLength      int                `bson:"ad_length" json:"ad_length"`
	Days          int                `bson:"days" json:"days"`
	MediaURLs     []string           `bson:"media_urls" json:"media_urls"`
	UserType      string             `bson:"user_type" json:"user_type"`
	Location      Location           `bson:"location" json:"location"`

	Subtotal       decimal.Decimal `bson:"subtotal" json:"subtotal"`
	GST            decimal.Decimal `bson:"gst" json:"gst"`
	TotalCost      decimal.Decimal `bson:"total_cost" json:"total_cost"`
	CouponCode     string          `bson:"coupon_code,omitempty" json:"coupon_code,omitempty"`
	DiscountAmount decimal.Decimal `bson:"discount_amount" json:"discount_amount"`
	PaidAmount     decimal.Decimal `bson:"paid_amount" json:"paid_amount"`
	PaymentMethod  string          `bson:"payment_method" json:"payment_method"`
	PaymentID      string          `bson:"payment_id,omitempty" json:"payment_id,omitempty"`

	BaseView           int64           `bson:"base_view" json:"base_view"`
	RequiredReporter   int             `bson:"required_reporter" json:"required_reporter"`
	AdminCommission    decimal.Decimal `bson:"admin_commission" json:"admin_commission"`
	FinalReporterPrice decimal.Decimal `bson:"final_reporter_price" json:"final_reporter_price"`

	Targeting         Targeting            `bson:"targeting" json:"targeting"`
	ExcludedReporters []primitive.ObjectID `bson:"excluded_reporters,omitempty" json:"excluded_reporters,omitempty"`
	NotifiedReporters []primitive.ObjectID `bson:"notified_reporters,omitempty" json:"notified_reporters,omitempty"`

	Status              AdStatus      `bson:"status" json:"status"`
	AdminNote           string        `bson:"admin_note,omitempty" json:"admin_note,omitempty"`
	ApprovedAt          *time.Time    `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	AcceptBefore        *time.Time    `bson:"accept_before,omitempty" json:"accept_before,omitempty"`
	AcceptReporterCount int           `bson:"accept_reporter_count" json:"accept_reporter_count"`
	// FilledFrom is the open status the ad had when it started running.
	FilledFrom          AdStatus      `bson:"filled_from,omitempty" json:"-"`
	CompletionDetails   *AdCompletion `bson:"completion_details,omitempty" json:"completion_details,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Full reports whether every reporter slot is taken.
func (a Advertisement) Full() bool {
	return a.AcceptReporterCount >= a.RequiredReporter
}
