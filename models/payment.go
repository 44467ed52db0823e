package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PaymentPurposeWalletTopUp    = "wallet_topup"
	PaymentPurposeAd             = "ad"
	PaymentPurposePaidConference = "paid_conference"
)

// PaymentHistory rows are written only for captured gateway payments.
type PaymentHistory struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserType  string             `bson:"user_type" json:"user_type"`
	OrderID   string             `bson:"order_id,omitempty" json:"order_id,omitempty"`
	PaymentID string             `bson:"payment_id" json:"payment_id"`
	Amount    decimal.Decimal    `bson:"amount" json:"amount"`
	Method    string             `bson:"method,omitempty" json:"method,omitempty"`
	Status    string             `bson:"status" json:"status"`
	Purpose   string             `bson:"purpose" json:"purpose"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// GatewayPayment is the payment gateway's view of a payment.
type GatewayPayment struct {
	ID      string
	OrderID string
	Status  string
	Method  string
	Amount  decimal.Decimal
}

// Captured reports whether the gateway settled the payment.
func (p GatewayPayment) Captured() bool {
	return p.Status == "captured" || p.Status == "paid"
}
