package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	services "github.com/phillip/iinsaf-marketplace-go/services"
)

// ---------------- BALANCE ----------------
func (h *Handler) GetBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		balance, err := h.Svc.Balance(ctx, a.ID, a.Role)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": balance, "user_type": a.Role})
	}
}

// ---------------- HISTORY ----------------
func (h *Handler) WalletHistory() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		ctx, cancel := h.requestCtx(c)
		defer cancel()

		out, err := h.Svc.History(ctx, a.ID, a.Role, page, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ---------------- WITHDRAW ----------------
func (h *Handler) RequestWithdrawal() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		var input struct {
			Amount      decimal.Decimal    `json:"amount"`
			BankDetails models.BankDetails `json:"bank_details"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		w, err := h.Svc.RequestWithdrawal(ctx, a, input.Amount, input.BankDetails)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "withdrawal requested", "balance": w.Balance})
	}
}

// ---------------- TOP UP ----------------
func (h *Handler) CreateTopUpOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		var input amountRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.externalCtx(c)
		defer cancel()

		orderID, err := h.Svc.CreateTopUpOrder(ctx, a, input.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"order_id": orderID, "amount": input.Amount})
	}
}

func (h *Handler) VerifyTopUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		var input struct {
			OrderID   string `json:"order_id"`
			PaymentID string `json:"payment_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.externalCtx(c)
		defer cancel()

		w, err := h.Svc.VerifyTopUp(ctx, a, services.GatewayProof{OrderID: input.OrderID, PaymentID: input.PaymentID})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "wallet credited", "balance": w.Balance})
	}
}

func (h *Handler) ListPayments() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		out, err := h.Svc.ListPayments(ctx, a.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

// ---------------- ADMIN ----------------

// ReconcileWallet checks a user's stored balance against its ledger.
func (h *Handler) ReconcileWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := objectIDParam(c, "userId")
		if !ok {
			return
		}
		userType := c.Query("user_type")
		if userType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_type is required"})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		if err := h.Svc.Reconcile(ctx, userID, userType); err != nil {
			respondError(c, err)
			return
		}
		balance, err := h.Svc.Balance(ctx, userID, userType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"consistent": true, "balance": balance})
	}
}
