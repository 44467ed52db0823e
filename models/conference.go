package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ConferenceStatus string

const (
	ConferenceStatusPending   ConferenceStatus = "pending"
	ConferenceStatusApproved  ConferenceStatus = "approved"
	ConferenceStatusRejected  ConferenceStatus = "rejected"
	ConferenceStatusModified  ConferenceStatus = "modified"
	ConferenceStatusRunning   ConferenceStatus = "running"
	ConferenceStatusCompleted ConferenceStatus = "completed"
)

// Open reports whether reporters may still respond to the conference.
func (s ConferenceStatus) Open() bool {
	return s == ConferenceStatusApproved || s == ConferenceStatusModified
}

const (
	FreeConferencePrefix = "FREE"
	PaidConferencePrefix = "PAID"
)

// Conference holds the fields shared by free and paid conferences.
type Conference struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConferenceID string             `bson:"conference_id" json:"conference_id"`
	SubmittedBy  primitive.ObjectID `bson:"submitted_by" json:"submitted_by"`
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	Topic        string             `bson:"topic" json:"topic"`
	Purpose      string             `bson:"purpose" json:"purpose"`
	Date         time.Time          `bson:"date" json:"date"`
	Time         string             `bson:"time" json:"time"`
	Location     Location           `bson:"location" json:"location"`
	UserType     string             `bson:"user_type" json:"user_type"`

	Targeting         Targeting            `bson:"targeting" json:"targeting"`
	ExcludedReporters []primitive.ObjectID `bson:"excluded_reporters,omitempty" json:"excluded_reporters,omitempty"`
	NotifiedReporters []primitive.ObjectID `bson:"notified_reporters,omitempty" json:"notified_reporters,omitempty"`

	Status      ConferenceStatus `bson:"status" json:"status"`
	AdminNote   string           `bson:"admin_note,omitempty" json:"admin_note,omitempty"`
	ApprovedAt  *time.Time       `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	CompletedAt *time.Time       `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

type FreeConference struct {
	Conference `bson:",inline"`
}

type CommissionDetails struct {
	CommissionPercentage decimal.Decimal `bson:"commission_percentage" json:"commission_percentage"`
	CommissionAmount     decimal.Decimal `bson:"commission_amount" json:"commission_amount"`
	AmountPerReporter    decimal.Decimal `bson:"amount_per_reporter" json:"amount_per_reporter"`
	CalculatedAt         time.Time       `bson:"calculated_at" json:"calculated_at"`
}

type RefundDetails struct {
	Amount         decimal.Decimal `bson:"amount" json:"amount"`
	Reason         string          `bson:"reason" json:"reason"`
	ShortfallCount int             `bson:"shortfall_count,omitempty" json:"shortfall_count,omitempty"`
	RefundedAt     time.Time       `bson:"refunded_at" json:"refunded_at"`
}

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

type PaidConference struct {
	Conference `bson:",inline"`

	NumberOfReporters int                `bson:"number_of_reporters" json:"number_of_reporters"`
	Subtotal          decimal.Decimal    `bson:"subtotal" json:"subtotal"`
	GST               decimal.Decimal    `bson:"gst" json:"gst"`
	PaymentAmount     decimal.Decimal    `bson:"payment_amount" json:"payment_amount"`
	PaymentStatus     string             `bson:"payment_status" json:"payment_status"`
	PaymentMethod     string             `bson:"payment_method" json:"payment_method"`
	PaymentID         string             `bson:"payment_id,omitempty" json:"payment_id,omitempty"`
	OrderID           string             `bson:"order_id,omitempty" json:"order_id,omitempty"`
	AcceptedCount     int                `bson:"accepted_count" json:"accepted_count"`
	FilledFrom        ConferenceStatus   `bson:"filled_from,omitempty" json:"-"`
	CommissionDetails *CommissionDetails `bson:"commission_details,omitempty" json:"commission_details,omitempty"`
	RefundDetails     *RefundDetails     `bson:"refund_details,omitempty" json:"refund_details,omitempty"`
}

// Full reports whether the reporter quota has been reached.
func (p PaidConference) Full() bool {
	return p.AcceptedCount >= p.NumberOfReporters
}
