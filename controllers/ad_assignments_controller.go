package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	services "github.com/phillip/iinsaf-marketplace-go/services"
)

type noteRequest struct {
	Note string `json:"note"`
}

type proofReviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// ---------------- REPORTER: OFFERS ----------------
func (h *Handler) ListReporterAds() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := h.requestCtx(c)
		defer cancel()

		rows, err := h.Svc.ListReporterAds(ctx, a)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func (h *Handler) AcceptAd() gin.HandlerFunc {
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

		row, err := h.Svc.AcceptAd(ctx, a, adID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) RejectAd() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
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

		row, err := h.Svc.RejectAd(ctx, a, adID, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// ---------------- REPORTER: PROOFS ----------------
func (h *Handler) SubmitInitialProof() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
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

		row, err := h.Svc.SubmitInitialProof(ctx, a, adID, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

func (h *Handler) SubmitCompletionProof() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
		if !ok {
			return
		}
		var input struct {
			Platform  string `form:"platform" binding:"required"`
			VideoLink string `form:"video_link" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		screenshot, closeAll, err := formUpload(c, "screenshot")
		defer closeAll()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := h.uploadCtx(c)
		defer cancel()

		res, err := h.Svc.SubmitCompletionProof(ctx, a, adID, services.CompletionInput{
			Screenshot: screenshot,
			Platform:   input.Platform,
			VideoLink:  input.VideoLink,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ---------------- ADMIN: PROOF REVIEW ----------------
func (h *Handler) ReviewInitialProof() gin.HandlerFunc {
	return h.reviewAdProof(false)
}

func (h *Handler) ReviewCompletionProof() gin.HandlerFunc {
	return h.reviewAdProof(true)
}

func (h *Handler) reviewAdProof(completion bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}
		adID, ok := objectIDParam(c, "id")
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

		review := h.Svc.ReviewInitialProof
		if completion {
			review = h.Svc.ReviewCompletionProof
		}
		row, err := review(ctx, a, adID, reporterID, input.Approve, input.Note)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

// bindProof reads the multipart proof fields shared by ads and conferences.
func bindProof(c *gin.Context) (services.ProofInput, func(), bool) {
	var input struct {
		ChannelName string `form:"channel_name"`
		Platform    string `form:"platform" binding:"required"`
		VideoLink   string `form:"video_link" binding:"required"`
		Duration    string `form:"duration"`
		Note        string `form:"note"`
	}
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.ProofInput{}, func() {}, false
	}
	screenshot, closeAll, err := formUpload(c, "screenshot")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return services.ProofInput{}, closeAll, false
	}
	return services.ProofInput{
		Screenshot:  screenshot,
		ChannelName: input.ChannelName,
		Platform:    input.Platform,
		VideoLink:   input.VideoLink,
		Duration:    input.Duration,
		Note:        input.Note,
	}, closeAll, true
}
