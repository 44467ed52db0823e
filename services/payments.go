package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

// GatewayProof is the client's evidence of a completed gateway checkout.
type GatewayProof struct {
	OrderID   string
	PaymentID string
}

func (s *Service) fetchPayment(ctx context.Context, paymentID string) (models.GatewayPayment, error) {
	if s.gateway == nil {
		return models.GatewayPayment{}, fmt.Errorf("%w: payment gateway is not configured", ErrExternal)
	}
	start := time.Now()
	p, err := s.gateway.FetchPayment(ctx, paymentID)
	s.metrics.ObserveExternal("payment_gateway", start, err)
	if err != nil {
		return models.GatewayPayment{}, fmt.Errorf("%w: fetch payment: %v", ErrExternal, err)
	}
	return p, nil
}

// claimGatewayPayment checks the payment is captured for at least amount and
// records it so the same payment cannot be spent twice.
func (s *Service) claimGatewayPayment(ctx context.Context, actor Actor, proof GatewayProof, amount decimal.Decimal, purpose string) (models.PaymentHistory, error) {
	if strings.TrimSpace(proof.PaymentID) == "" {
		return models.PaymentHistory{}, validationf("payment_id is required")
	}
	p, err := s.fetchPayment(ctx, proof.PaymentID)
	if err != nil {
		return models.PaymentHistory{}, err
	}
	if !p.Captured() {
		return models.PaymentHistory{}, ErrPaymentNotCaptured
	}
	if proof.OrderID != "" && p.OrderID != "" && p.OrderID != proof.OrderID {
		return models.PaymentHistory{}, validationf("payment does not belong to order %s", proof.OrderID)
	}
	if p.Amount.LessThan(amount) {
		return models.PaymentHistory{}, validationf("paid amount %s is less than %s", p.Amount, amount)
	}

	rec := models.PaymentHistory{
		UserID:    actor.ID,
		UserType:  actor.Role,
		OrderID:   p.OrderID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    p.Status,
		Purpose:   purpose,
		CreatedAt: s.now(),
	}
	if rec.PaymentID == "" {
		rec.PaymentID = proof.PaymentID
	}
	if err := s.store.RecordPayment(ctx, &rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.PaymentHistory{}, ErrPaymentAlreadyUsed
		}
		return models.PaymentHistory{}, storeErr(err, "payment")
	}
	return rec, nil
}

// releaseGatewayPayment forgets a claimed payment whose entity was never created.
func (s *Service) releaseGatewayPayment(ctx context.Context, paymentID string, cause error) {
	zap.L().Warn("Releasing gateway payment", zap.String("payment_id", paymentID), zap.Error(cause))
	if err := s.store.DeletePayment(ctx, paymentID); err != nil {
		zap.L().Error("Gateway payment release failed", zap.String("payment_id", paymentID), zap.Error(err))
	}
}

// CreateTopUpOrder opens a gateway order for a wallet top-up.
func (s *Service) CreateTopUpOrder(ctx context.Context, actor Actor, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", validationf("amount must be positive")
	}
	if s.gateway == nil {
		return "", fmt.Errorf("%w: payment gateway is not configured", ErrExternal)
	}
	receipt := "topup_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	start := time.Now()
	orderID, err := s.gateway.CreateOrder(ctx, amount, s.opts.Currency, receipt)
	s.metrics.ObserveExternal("payment_gateway", start, err)
	if err != nil {
		return "", fmt.Errorf("%w: create order: %v", ErrExternal, err)
	}
	zap.L().Info("Top-up order created",
		zap.String("user_id", actor.ID.Hex()),
		zap.String("order_id", orderID),
		zap.String("amount", amount.String()))
	return orderID, nil
}

// VerifyTopUp credits the wallet for a captured payment and records it in the
// payment history. When the history write fails the credit is reversed.
func (s *Service) VerifyTopUp(ctx context.Context, actor Actor, proof GatewayProof) (models.Wallet, error) {
	if strings.TrimSpace(proof.PaymentID) == "" {
		return models.Wallet{}, validationf("payment_id is required")
	}
	p, err := s.fetchPayment(ctx, proof.PaymentID)
	if err != nil {
		return models.Wallet{}, err
	}
	if !p.Captured() {
		return models.Wallet{}, ErrPaymentNotCaptured
	}
	if proof.OrderID != "" && p.OrderID != "" && p.OrderID != proof.OrderID {
		return models.Wallet{}, validationf("payment does not belong to order %s", proof.OrderID)
	}

	entry := LedgerEntry{
		UserID:        actor.ID,
		UserType:      actor.Role,
		Amount:        p.Amount,
		Description:   "Wallet top-up",
		CorrelationID: proof.PaymentID,
	}
	w, err := s.Credit(ctx, entry)
	if err != nil {
		return models.Wallet{}, err
	}

	rec := models.PaymentHistory{
		UserID:    actor.ID,
		UserType:  actor.Role,
		OrderID:   p.OrderID,
		PaymentID: proof.PaymentID,
		Amount:    p.Amount,
		Method:    p.Method,
		Status:    p.Status,
		Purpose:   models.PaymentPurposeWalletTopUp,
		CreatedAt: s.now(),
	}
	if err := s.store.RecordPayment(ctx, &rec); err != nil {
		if rerr := s.reverseCredit(ctx, entry, err); rerr != nil {
			return models.Wallet{}, rerr
		}
		if errors.Is(err, store.ErrDuplicate) {
			return models.Wallet{}, ErrPaymentAlreadyUsed
		}
		return models.Wallet{}, storeErr(err, "payment")
	}
	return w, nil
}

func (s *Service) ListPayments(ctx context.Context, userID primitive.ObjectID) ([]models.PaymentHistory, error) {
	out, err := s.store.ListPayments(ctx, userID)
	return out, storeErr(err, "payments")
}
