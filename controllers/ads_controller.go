package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	services "github.com/phillip/iinsaf-marketplace-go/services"
)

// ---------------- CREATE ----------------
func (h *Handler) CreateAd() gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Authenticated user ---
		a, ok := actor(c)
		if !ok {
			return
		}

		// --- Bind form fields ---
		var input struct {
			AdType        string   `form:"ad_type" binding:"required"`
			ChannelType   string   `form:"channel_type"`
			Description   string   `form:"description"`
			RequiredViews int64    `form:"required_views" binding:"required"`
			AdLength      int      `form:"ad_length" binding:"required"`
			Days          int      `form:"days"`
			UserType      string   `form:"user_type" binding:"required"`
			State         string   `form:"state" binding:"required"`
			City          string   `form:"city" binding:"required"`
			Place         string   `form:"place"`
			Landmark      string   `form:"landmark"`
			Pincode       string   `form:"pincode"`
			Cities        []string `form:"cities"`
			CouponCode    string   `form:"coupon_code"`
			PaymentMethod string   `form:"payment_method" binding:"required"`
			OrderID       string   `form:"order_id"`
			PaymentID     string   `form:"payment_id"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// --- Handle file uploads ---
		media, closeAll, err := formUploads(c, "media")
		defer closeAll()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := h.uploadCtx(c)
		defer cancel()

		ad, err := h.Svc.CreateAd(ctx, a, services.CreateAdInput{
			AdType:        input.AdType,
			ChannelType:   input.ChannelType,
			Description:   input.Description,
			RequiredViews: input.RequiredViews,
			AdLength:      input.AdLength,
			Days:          input.Days,
			UserType:      input.UserType,
			Location: models.Location{
				State:    input.State,
				City:     input.City,
				Place:    input.Place,
				Landmark: input.Landmark,
				Pincode:  input.Pincode,
			},
			Cities:        compact(input.Cities),
			CouponCode:    input.CouponCode,
			PaymentMethod: input.PaymentMethod,
			Payment:       services.GatewayProof{OrderID: input.OrderID, PaymentID: input.PaymentID},
			Media:         media,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ad)
	}
}

// ---------------- QUOTE ----------------
func (h *Handler) QuoteAd() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			AdType        string `json:"ad_type" binding:"required"`
			RequiredViews int64  `json:"required_views" binding:"required"`
			AdLength      int    `json:"ad_length" binding:"required"`
			Days          int    `json:"days"`
			Cities        int    `json:"cities"`
			CouponCode    string `json:"coupon_code"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := h.requestCtx(c)
		defer cancel()

		pricing, err := h.Svc.Pricing(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		quote, err := services.QuoteAd(pricing, services.AdQuoteInput{
			AdType:        input.AdType,
			RequiredViews: input.RequiredViews,
			AdLength:      input.AdLength,
			Days:          input.Days,
			Cities:        input.Cities,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		resp := gin.H{"quote": quote, "payable": quote.Total}
		if code := strings.TrimSpace(input.CouponCode); code != "" {
			res, err := h.Svc.ValidateCoupon(ctx, code, quote.Total)
			if err != nil {
				respondError(c, err)
				return
			}
			resp["coupon"] = res
			resp["payable"] = res.FinalPrice
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ---------------- LIST ----------------
func (h *Handler) ListAds() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		ads, err := h.Svc.ListAds(ctx, a, models.AdStatus(c.Query("status")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ads)
	}
}

// ---------------- GET ----------------
func (h *Handler) GetAd() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		ad, err := h.Svc.GetAd(ctx, a, adID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ad)
	}
}

// ---------------- REVIEW (admin) ----------------
func (h *Handler) ReviewAd() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var input reviewRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := h.requestCtx(c)
		defer cancel()

		ad, err := h.Svc.ReviewAd(ctx, a, adID, input.toService())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ad)
	}
}

func (h *Handler) ListAdAssignments() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		rows, err := h.Svc.ListAdAssignments(ctx, a, adID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// ---------------- VIEW REPORT ----------------
func (h *Handler) AdViewReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.externalCtx(c)
		defer cancel()

		report, err := h.Svc.AdViewReport(ctx, a, adID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

type reviewRequest struct {
	Action    string            `json:"action" binding:"required,oneof=approve modify reject"`
	Note      string            `json:"note"`
	Targeting *models.Targeting `json:"targeting"`
}

func (r reviewRequest) toService() services.ReviewInput {
	return services.ReviewInput{Action: r.Action, Note: r.Note, Targeting: r.Targeting}
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
