package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

// LedgerEntry describes one wallet mutation.
type LedgerEntry struct {
	UserID        primitive.ObjectID
	UserType      string
	Amount        decimal.Decimal
	Description   string
	CorrelationID string
	BankDetails   *models.BankDetails
}

func (s *Service) newTransaction(txType models.TransactionType, e LedgerEntry) (models.WalletTransaction, error) {
	if !e.Amount.IsPositive() {
		return models.WalletTransaction{}, validationf("amount must be positive")
	}
	if e.UserID.IsZero() || e.UserType == "" {
		return models.WalletTransaction{}, validationf("wallet owner is required")
	}
	correlationID := e.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return models.WalletTransaction{
		ID:            uuid.NewString(),
		Type:          txType,
		Amount:        e.Amount,
		Description:   e.Description,
		Status:        models.TransactionStatusSuccess,
		CorrelationID: correlationID,
		BankDetails:   e.BankDetails,
		CreatedAt:     s.now(),
	}, nil
}

// Credit appends a credit and raises the balance in one step. A repeated
// correlation id fails with ErrDuplicateTransaction and changes nothing.
func (s *Service) Credit(ctx context.Context, e LedgerEntry) (models.Wallet, error) {
	tx, err := s.newTransaction(models.TransactionCredit, e)
	if err != nil {
		return models.Wallet{}, err
	}
	w, err := s.store.Credit(ctx, e.UserID, e.UserType, tx)
	if err != nil {
		s.metrics.ObserveWallet(string(models.TransactionCredit), "error")
		return models.Wallet{}, storeErr(err, "wallet")
	}
	s.metrics.ObserveWallet(string(models.TransactionCredit), "ok")
	zap.L().Info("Wallet credited",
		zap.String("user_id", e.UserID.Hex()),
		zap.String("user_type", e.UserType),
		zap.String("amount", e.Amount.String()),
		zap.String("correlation_id", tx.CorrelationID))
	return w, nil
}

// Debit appends a debit only when the balance covers it.
func (s *Service) Debit(ctx context.Context, e LedgerEntry) (models.Wallet, error) {
	tx, err := s.newTransaction(models.TransactionDebit, e)
	if err != nil {
		return models.Wallet{}, err
	}
	w, err := s.store.Debit(ctx, e.UserID, e.UserType, tx)
	if err != nil {
		s.metrics.ObserveWallet(string(models.TransactionDebit), "error")
		return models.Wallet{}, storeErr(err, "wallet")
	}
	s.metrics.ObserveWallet(string(models.TransactionDebit), "ok")
	zap.L().Info("Wallet debited",
		zap.String("user_id", e.UserID.Hex()),
		zap.String("user_type", e.UserType),
		zap.String("amount", e.Amount.String()),
		zap.String("correlation_id", tx.CorrelationID))
	return w, nil
}

// settle credits e and treats an already-recorded correlation id as done.
func (s *Service) settle(ctx context.Context, kind string, e LedgerEntry) (bool, error) {
	_, err := s.Credit(ctx, e)
	if errors.Is(err, ErrDuplicateTransaction) {
		zap.L().Info("Settlement already processed - skipping",
			zap.String("kind", kind),
			zap.String("correlation_id", e.CorrelationID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.metrics.ObserveSettlement(kind)
	return true, nil
}

// reverseDebit compensates a debit whose dependent write failed.
func (s *Service) reverseDebit(ctx context.Context, original LedgerEntry, cause error) error {
	reversal := original
	reversal.CorrelationID = original.CorrelationID + "-reversal"
	reversal.Description = "Reversal: " + original.Description

	zap.L().Warn("Reversing wallet debit",
		zap.String("user_id", original.UserID.Hex()),
		zap.String("amount", original.Amount.String()),
		zap.String("original_tx", original.CorrelationID),
		zap.String("reversal_tx", reversal.CorrelationID),
		zap.Error(cause))

	if _, err := s.Credit(ctx, reversal); err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		zap.L().Error("Debit reversal failed", zap.String("original_tx", original.CorrelationID), zap.Error(err))
		return fmt.Errorf("reverse debit %s: %w", original.CorrelationID, err)
	}
	return nil
}

// reverseCredit compensates a credit whose dependent write failed.
func (s *Service) reverseCredit(ctx context.Context, original LedgerEntry, cause error) error {
	reversal := original
	reversal.CorrelationID = original.CorrelationID + "-reversal"
	reversal.Description = "Reversal: " + original.Description

	zap.L().Warn("Reversing wallet credit",
		zap.String("user_id", original.UserID.Hex()),
		zap.String("amount", original.Amount.String()),
		zap.String("original_tx", original.CorrelationID),
		zap.String("reversal_tx", reversal.CorrelationID),
		zap.Error(cause))

	if _, err := s.Debit(ctx, reversal); err != nil && !errors.Is(err, ErrDuplicateTransaction) {
		zap.L().Error("Credit reversal failed", zap.String("original_tx", original.CorrelationID), zap.Error(err))
		return fmt.Errorf("reverse credit %s: %w", original.CorrelationID, err)
	}
	return nil
}

// Balance returns zero for an owner that has no wallet yet.
func (s *Service) Balance(ctx context.Context, userID primitive.ObjectID, userType string) (decimal.Decimal, error) {
	w, err := s.store.GetWallet(ctx, userID, userType)
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, storeErr(err, "wallet")
	}
	return w.Balance, nil
}

type HistoryPage struct {
	Balance      decimal.Decimal            `json:"balance"`
	Transactions []models.WalletTransaction `json:"transactions"`
	Total        int                        `json:"total"`
	Page         int                        `json:"page"`
	Limit        int                        `json:"limit"`
}

// History returns transactions newest first.
func (s *Service) History(ctx context.Context, userID primitive.ObjectID, userType string, page, limit int) (HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	w, err := s.store.GetWallet(ctx, userID, userType)
	if errors.Is(err, store.ErrNotFound) {
		return HistoryPage{Balance: decimal.Zero, Transactions: []models.WalletTransaction{}, Page: page, Limit: limit}, nil
	}
	if err != nil {
		return HistoryPage{}, storeErr(err, "wallet")
	}

	txs := w.Transactions
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	start := (page - 1) * limit
	if start > len(txs) {
		start = len(txs)
	}
	end := start + limit
	if end > len(txs) {
		end = len(txs)
	}
	return HistoryPage{
		Balance:      w.Balance,
		Transactions: txs[start:end],
		Total:        len(txs),
		Page:         page,
		Limit:        limit,
	}, nil
}

// Reconcile verifies the stored balance equals the signed transaction sum.
func (s *Service) Reconcile(ctx context.Context, userID primitive.ObjectID, userType string) error {
	w, err := s.store.GetWallet(ctx, userID, userType)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err, "wallet")
	}
	calculated := w.LedgerSum()
	if !w.Balance.Equal(calculated) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("user_id", userID.Hex()),
			zap.String("user_type", userType),
			zap.String("current_balance", w.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", w.Balance.Sub(calculated).String()))
		return fmt.Errorf("%w: balance %s does not match ledger %s", ErrConflict, w.Balance, calculated)
	}
	return nil
}

// RequestWithdrawal debits a reporter's wallet towards their bank account.
func (s *Service) RequestWithdrawal(ctx context.Context, actor Actor, amount decimal.Decimal, bank models.BankDetails) (models.Wallet, error) {
	if !models.IsWorkerRole(actor.Role) {
		return models.Wallet{}, fmt.Errorf("%w: only reporters can withdraw", ErrForbidden)
	}
	pricing, err := s.Pricing(ctx)
	if err != nil {
		return models.Wallet{}, err
	}
	if amount.LessThan(pricing.MinimumWithdrawAmountForReporter) {
		return models.Wallet{}, validationf("minimum withdrawal amount is %s", pricing.MinimumWithdrawAmountForReporter)
	}
	return s.Debit(ctx, LedgerEntry{
		UserID:        actor.ID,
		UserType:      actor.Role,
		Amount:        amount,
		Description:   "Withdrawal to bank account",
		CorrelationID: "withdrawal:" + uuid.NewString(),
		BankDetails:   &bank,
	})
}
