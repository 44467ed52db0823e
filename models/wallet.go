package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

const (
	TransactionStatusSuccess = "success"
	TransactionStatusPending = "pending"
	TransactionStatusFailed  = "failed"
)

type BankDetails struct {
	AccountHolder string `bson:"account_holder" json:"account_holder" binding:"required"`
	AccountNumber string `bson:"account_number" json:"account_number" binding:"required"`
	IFSC          string `bson:"ifsc" json:"ifsc" binding:"required"`
	BankName      string `bson:"bank_name,omitempty" json:"bank_name,omitempty"`
	UPI           string `bson:"upi,omitempty" json:"upi,omitempty"`
}

type WalletTransaction struct {
	ID            string          `bson:"id" json:"id"`
	Type          TransactionType `bson:"type" json:"type"`
	Amount        decimal.Decimal `bson:"amount" json:"amount"`
	Description   string          `bson:"description" json:"description"`
	Status        string          `bson:"status" json:"status"`
	CorrelationID string          `bson:"correlation_id" json:"correlation_id"`
	BankDetails   *BankDetails    `bson:"bank_details,omitempty" json:"bank_details,omitempty"`
	CreatedAt     time.Time       `bson:"created_at" json:"created_at"`
}

// Signed returns the amount as it contributes to the balance.
func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Status != TransactionStatusSuccess {
		return decimal.Zero
	}
	if t.Type == TransactionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Wallet is owned by exactly one (user_id, user_type) pair.
type Wallet struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID  `bson:"user_id" json:"user_id"`
	UserType     string              `bson:"user_type" json:"user_type"`
	Balance      decimal.Decimal     `bson:"balance" json:"balance"`
	Transactions []WalletTransaction `bson:"transactions" json:"transactions"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}

// LedgerSum is the signed sum of successful transactions.
func (w Wallet) LedgerSum() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range w.Transactions {
		sum = sum.Add(t.Signed())
	}
	return sum
}

// HasCorrelation reports whether a transaction with the correlation id exists.
func (w Wallet) HasCorrelation(correlationID string) bool {
	for _, t := range w.Transactions {
		if t.CorrelationID == correlationID {
			return true
		}
	}
	return false
}
