package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	services "github.com/phillip/iinsaf-marketplace-go/services"
)

type conferenceRequest struct {
	Name     string          `json:"name"`
	Topic    string          `json:"topic" binding:"required"`
	Purpose  string          `json:"purpose" binding:"required"`
	Date     string          `json:"date" binding:"required"`
	Time     string          `json:"time" binding:"required"`
	Location models.Location `json:"location"`
	UserType string          `json:"user_type"`
}

func (r conferenceRequest) toService(c *gin.Context) (services.ConferenceInput, bool) {
	date, err := parseDate(r.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.ConferenceInput{}, false
	}
	return services.ConferenceInput{
		Name:     r.Name,
		Topic:    r.Topic,
		Purpose:  r.Purpose,
		Date:     date,
		Time:     r.Time,
		Location: r.Location,
		UserType: r.UserType,
	}, true
}

// ---------------- FREE: SUBMIT ----------------
func (h *Handler) SubmitFreeConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		var input conferenceRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in, ok := input.toService(c)
		if !ok {
			return
		}

		ctx, cancel := h.requestCtx(c)
		defer cancel()

		conf, err := h.Svc.SubmitFreeConference(ctx, a, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conf)
	}
}

// ---------------- PAID: QUOTE + SUBMIT ----------------
func (h *Handler) QuotePaidConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			NumberOfReporters int `json:"number_of_reporters" binding:"required"`
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
		quote, err := services.QuotePaidConference(pricing, input.NumberOfReporters)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, quote)
	}
}

func (h *Handler) SubmitPaidConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		var input struct {
			conferenceRequest
			NumberOfReporters int    `json:"number_of_reporters" binding:"required"`
			PaymentMethod     string `json:"payment_method" binding:"required"`
			OrderID           string `json:"order_id"`
			PaymentID         string `json:"payment_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		base, ok := input.conferenceRequest.toService(c)
		if !ok {
			return
		}

		ctx, cancel := h.externalCtx(c)
		defer cancel()

		conf, err := h.Svc.SubmitPaidConference(ctx, a, services.PaidConferenceInput{
			ConferenceInput:   base,
			NumberOfReporters: input.NumberOfReporters,
			PaymentMethod:     input.PaymentMethod,
			Payment:           services.GatewayProof{OrderID: input.OrderID, PaymentID: input.PaymentID},
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, conf)
	}
}

// ---------------- ADMIN: REVIEW ----------------
func (h *Handler) ReviewFreeConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, id, input, ok := bindReview(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		conf, err := h.Svc.ReviewFreeConference(ctx, a, id, input.toService())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conf)
	}
}

func (h *Handler) ReviewPaidConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, id, input, ok := bindReview(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		conf, err := h.Svc.ReviewPaidConference(ctx, a, id, input.toService())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conf)
	}
}

func bindReview(c *gin.Context) (services.Actor, primitive.ObjectID, reviewRequest, bool) {
	a, ok := actor(c)
	if !ok {
		return services.Actor{}, primitive.NilObjectID, reviewRequest{}, false
	}
	id, ok := objectIDParam(c, "id")
	if !ok {
		return services.Actor{}, primitive.NilObjectID, reviewRequest{}, false
	}
	var input reviewRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.Actor{}, primitive.NilObjectID, reviewRequest{}, false
	}
	return a, id, input, true
}

// ---------------- REPORTER: RESPOND ----------------
func (h *Handler) ListReporterConferences(kind models.AssignmentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		rows, err := h.Svc.ListReporterConferences(ctx, a, kind)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func (h *Handler) AcceptConference(kind models.AssignmentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		row, err := h.Svc.AcceptConference(ctx, a, kind, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) RejectConference(kind models.AssignmentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var input noteRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		row, err := h.Svc.RejectConference(ctx, a, kind, id, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) SubmitConferenceProof(kind models.AssignmentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		in, closeAll, ok := bindProof(c)
		defer closeAll()
		if !ok {
			return
		}

		ctx, cancel := h.uploadCtx(c)
		defer cancel()

		row, err := h.Svc.SubmitConferenceProof(ctx, a, kind, id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// ---------------- ADMIN: PROOFS ----------------
func (h *Handler) ReviewFreeConferenceProof() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		reporterID, ok := objectIDParam(c, "reporterId")
		if !ok {
			return
		}
		var input proofReviewRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		row, err := h.Svc.ReviewFreeConferenceProof(ctx, a, id, reporterID, input.Approve, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) ApprovePaidConferenceProof() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		reporterID, ok := objectIDParam(c, "reporterId")
		if !ok {
			return
		}
		// --- Idempotency token from header or body ---
		token := c.GetHeader("Idempotency-Key")
		if token == "" {
			var input struct {
				Token string `json:"token"`
			}
			_ = c.ShouldBindJSON(&input)
			token = input.Token
		}

		ctx, cancel := h.requestCtx(c)
		defer cancel()

		row, err := h.Svc.ApprovePaidConferenceProof(ctx, a, id, reporterID, token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) RejectPaidConferenceProof() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		reporterID, ok := objectIDParam(c, "reporterId")
		if !ok {
			return
		}
		var input noteRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		row, err := h.Svc.RejectPaidConferenceProof(ctx, a, id, reporterID, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// ---------------- COMPLETION ----------------
func (h *Handler) CompleteFreeConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		conf, err := h.Svc.CompleteFreeConference(ctx, a, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conf)
	}
}

func (h *Handler) ForceCompletePaidConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var input noteRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		conf, err := h.Svc.ForceCompletePaidConference(ctx, a, id, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, conf)
	}
}

func (h *Handler) RemoveConferenceReporter(kind models.AssignmentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		reporterID, ok := objectIDParam(c, "reporterId")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		if err := h.Svc.RemoveConferenceReporter(ctx, a, kind, id, reporterID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "reporter removed"})
	}
}

// ---------------- READ ----------------
func (h *Handler) GetFreeConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		detail, err := h.Svc.GetFreeConference(ctx, a, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func (h *Handler) GetPaidConference() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		detail, err := h.Svc.GetPaidConference(ctx, a, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func (h *Handler) ListFreeConferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		out, err := h.Svc.ListFreeConferences(ctx, a, models.ConferenceStatus(c.Query("status")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *Handler) ListPaidConferences() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		out, err := h.Svc.ListPaidConferences(ctx, a, models.ConferenceStatus(c.Query("status")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
