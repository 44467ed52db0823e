package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	config "github.com/phillip/iinsaf-marketplace-go/config"
	controllers "github.com/phillip/iinsaf-marketplace-go/controllers"
	"github.com/phillip/iinsaf-marketplace-go/metrics"
	middleware "github.com/phillip/iinsaf-marketplace-go/middleware"
	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, h *controllers.Handler, m *metrics.Metrics) {
	// public
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	r.GET("/pricing", h.GetPricing())
	r.POST("/ads/quote", h.QuoteAd())
	r.POST("/paid-conferences/quote", h.QuotePaidConference())

	// protected
	auth := middleware.AuthMiddleware(cfg)
	workers := middleware.RequireRoles(models.RoleReporter, models.RoleInfluencer)
	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	ads := r.Group("/ads")
	ads.Use(auth)
	{
		ads.POST("", middleware.RequireRoles(models.RoleAdvertiser), h.CreateAd())
		ads.GET("", h.ListAds())
		ads.GET("/:id", h.GetAd())
		ads.GET("/:id/views", h.AdViewReport())
		ads.POST("/coupons/validate", h.ValidateCoupon())
	}

	// Reporter and influencer offers
	reporter := r.Group("/reporter")
	reporter.Use(auth, workers)
	{
		reporter.GET("/ads", h.ListReporterAds())
		reporter.POST("/ads/:id/accept", h.AcceptAd())
		reporter.POST("/ads/:id/reject", h.RejectAd())
		reporter.POST("/ads/:id/proof", h.SubmitInitialProof())
		reporter.POST("/ads/:id/completion", h.SubmitCompletionProof())

		reporter.GET("/free-conferences", h.ListReporterConferences(models.KindFreeConference))
		reporter.POST("/free-conferences/:id/accept", h.AcceptConference(models.KindFreeConference))
		reporter.POST("/free-conferences/:id/reject", h.RejectConference(models.KindFreeConference))
		reporter.POST("/free-conferences/:id/proof", h.SubmitConferenceProof(models.KindFreeConference))

		reporter.GET("/paid-conferences", h.ListReporterConferences(models.KindPaidConference))
		reporter.POST("/paid-conferences/:id/accept", h.AcceptConference(models.KindPaidConference))
		reporter.POST("/paid-conferences/:id/reject", h.RejectConference(models.KindPaidConference))
		reporter.POST("/paid-conferences/:id/proof", h.SubmitConferenceProof(models.KindPaidConference))

		reporter.POST("/withdraw", h.RequestWithdrawal())
	}

	// Press conference submitters
	press := r.Group("")
	press.Use(auth)
	{
		press.POST("/free-conferences", middleware.RequireRoles(models.RolePress), h.SubmitFreeConference())
		press.GET("/free-conferences", h.ListFreeConferences())
		press.GET("/free-conferences/:id", h.GetFreeConference())

		press.POST("/paid-conferences", middleware.RequireRoles(models.RolePress), h.SubmitPaidConference())
		press.GET("/paid-conferences", h.ListPaidConferences())
		press.GET("/paid-conferences/:id", h.GetPaidConference())
	}

	wallet := r.Group("/wallet")
	wallet.Use(auth)
	{
		wallet.GET("/balance", h.GetBalance())
		wallet.GET("/history", h.WalletHistory())
		wallet.POST("/topup/order", h.CreateTopUpOrder())
		wallet.POST("/topup/verify", h.VerifyTopUp())
		wallet.GET("/payments", h.ListPayments())
	}

	admin := r.Group("/admin")
	admin.Use(auth, admins)
	{
		adAdmin := admin.Group("/ads", middleware.RequireSection(models.SectionAds))
		adAdmin.GET("/:id/assignments", h.ListAdAssignments())
		adAdmin.POST("/:id/review", h.ReviewAd())
		adAdmin.POST("/:id/proofs/:reporterId/initial", h.ReviewInitialProof())
		adAdmin.POST("/:id/proofs/:reporterId/completion", h.ReviewCompletionProof())

		conf := admin.Group("", middleware.RequireSection(models.SectionConferences))
		conf.POST("/free-conferences/:id/review", h.ReviewFreeConference())
		conf.POST("/free-conferences/:id/proofs/:reporterId", h.ReviewFreeConferenceProof())
		conf.POST("/free-conferences/:id/complete", h.CompleteFreeConference())
		conf.DELETE("/free-conferences/:id/reporters/:reporterId", h.RemoveConferenceReporter(models.KindFreeConference))

		conf.POST("/paid-conferences/:id/review", h.ReviewPaidConference())
		conf.POST("/paid-conferences/:id/proofs/:reporterId/approve", h.ApprovePaidConferenceProof())
		conf.POST("/paid-conferences/:id/proofs/:reporterId/reject", h.RejectPaidConferenceProof())
		conf.POST("/paid-conferences/:id/complete", h.ForceCompletePaidConference())
		conf.DELETE("/paid-conferences/:id/reporters/:reporterId", h.RemoveConferenceReporter(models.KindPaidConference))

		pricing := admin.Group("", middleware.RequireSection(models.SectionPricing))
		pricing.PUT("/pricing", h.SetPricing())
		pricing.POST("/coupons", h.CreateCoupon())
		pricing.GET("/coupons", h.ListCoupons())

		wallets := admin.Group("/wallets", middleware.RequireSection(models.SectionWallet))
		wallets.GET("/:userId/reconcile", h.ReconcileWallet())
	}
}
