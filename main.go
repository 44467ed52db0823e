package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/phillip/iinsaf-marketplace-go/cache"
	config "github.com/phillip/iinsaf-marketplace-go/config"
	controllers "github.com/phillip/iinsaf-marketplace-go/controllers"
	"github.com/phillip/iinsaf-marketplace-go/metrics"
	middleware "github.com/phillip/iinsaf-marketplace-go/middleware"
	routes "github.com/phillip/iinsaf-marketplace-go/routes"
	services "github.com/phillip/iinsaf-marketplace-go/services"
	"github.com/phillip/iinsaf-marketplace-go/store/mongostore"
	utils "github.com/phillip/iinsaf-marketplace-go/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Mongo ---
	if err := cfg.Connect(ctx, mongostore.NewRegistry()); err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer cfg.MongoClient.Disconnect(context.Background())

	st := mongostore.New(cfg.MongoClient, cfg.DBName)
	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to create indexes", zap.Error(err))
	}

	m := metrics.New()
	deps := services.Deps{
		Store:   st,
		Metrics: m,
		Options: services.Options{
			ProofSubmissionWindow:  cfg.ProofSubmissionWindow,
			PricingCacheTTL:        cfg.PricingCacheTTL,
			IdempotencyKeyTTL:      cfg.IdempotencyKeyTTL,
			ConferenceCodeAttempts: cfg.ConferenceCodeAttempts,
		},
	}

	// --- Caches ---
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		deps.Idempotency = cache.NewRedisIdempotencyStore(rdb)
		deps.PricingCache = cache.NewRedisPricingCache(rdb)
	} else {
		logger.Warn("REDIS_URL not set, using in-process caches")
		deps.Idempotency = cache.NewMemoryIdempotencyStore()
		deps.PricingCache = cache.NewMemoryPricingCache()
	}

	// --- External clients (optional) ---
	if media, err := utils.NewCloudinaryStore(cfg); err != nil {
		logger.Warn("Media uploads disabled", zap.Error(err))
	} else {
		deps.Media = media
	}
	if rzp, err := utils.NewRazorpayClient(cfg); err != nil {
		logger.Warn("Payment gateway disabled", zap.Error(err))
	} else {
		deps.Gateway = rzp
	}
	if yt, err := utils.NewYouTubeViews(cfg); err != nil {
		logger.Warn("View counter disabled", zap.Error(err))
	} else {
		deps.Views = yt
	}
	if mailer, err := utils.NewZeptoMailer(cfg); err != nil {
		logger.Warn("Email notifications disabled", zap.Error(err))
	} else {
		deps.Notifier = mailer
	}

	h := controllers.NewHandler(cfg, services.New(deps))

	// --- Router ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(m))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"}
	corsCfg.ExposeHeaders = []string{"X-Request-ID"}
	r.Use(cors.New(corsCfg))

	routes.SetupRoutes(r, cfg, h, m)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("Server started", zap.String("port", cfg.Port), zap.String("env", cfg.Env))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
