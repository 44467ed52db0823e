package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

// ---------------- PRICING ----------------
func (h *Handler) GetPricing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		cfg, err := h.Svc.Pricing(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

func (h *Handler) SetPricing() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.PricingConfig
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		cfg, err := h.Svc.SetPricing(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// ---------------- COUPONS ----------------
func (h *Handler) CreateCoupon() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.Coupon
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		coupon, err := h.Svc.CreateCoupon(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, coupon)
	}
}

func (h *Handler) ListCoupons() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		coupons, err := h.Svc.ListCoupons(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, coupons)
	}
}

// ValidateCoupon previews the discount for a price without redeeming.
func (h *Handler) ValidateCoupon() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Code  string          `json:"code" binding:"required"`
			Price decimal.Decimal `json:"price"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		res, err := h.Svc.ValidateCoupon(ctx, input.Code, input.Price)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
