package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	Port string
	Env  string

	MongoURI    string
	DBName      string
	MongoClient *mongo.Client

	JWTSecret string
	RedisURL  string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string

	YouTubeAPIKey  string
	YouTubeBaseURL string

	ZeptoAPIURL string
	ZeptoAPIKey string
	EmailFrom   string

	RequestTimeout         time.Duration
	UploadTimeout          time.Duration
	ExternalTimeout        time.Duration
	ProofSubmissionWindow  time.Duration
	PricingCacheTTL        time.Duration
	IdempotencyKeyTTL      time.Duration
	ConferenceCodeAttempts int
}

// Load reads the process environment (and .env when present).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: no .env file loaded: %v", err)
	}

	requestTimeout, err := getEnvDuration("REQUEST_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	uploadTimeout, err := getEnvDuration("UPLOAD_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	externalTimeout, err := getEnvDuration("EXTERNAL_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	proofWindow, err := getEnvDuration("PROOF_SUBMISSION_WINDOW", 14*time.Hour)
	if err != nil {
		return nil, err
	}
	pricingTTL, err := getEnvDuration("PRICING_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	idemTTL, err := getEnvDuration("IDEMPOTENCY_KEY_TTL", 72*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                   getEnvString("PORT", "8080"),
		Env:                    getEnvString("APP_ENV", "development"),
		MongoURI:               getEnvString("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:                 getEnvString("DB_NAME", "iinsaf"),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		RedisURL:               os.Getenv("REDIS_URL"),
		CloudinaryCloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    os.Getenv("CLOUDINARY_API_SECRET"),
		RazorpayKeyID:          os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:      os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:        getEnvString("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1"),
		YouTubeAPIKey:          os.Getenv("YOUTUBE_API_KEY"),
		YouTubeBaseURL:         getEnvString("YOUTUBE_BASE_URL", "https://www.googleapis.com/youtube/v3"),
		ZeptoAPIURL:            os.Getenv("ZEPTO_API_URL"),
		ZeptoAPIKey:            os.Getenv("ZEPTO_API_KEY"),
		EmailFrom:              os.Getenv("EMAIL_FROM"),
		RequestTimeout:         requestTimeout,
		UploadTimeout:          uploadTimeout,
		ExternalTimeout:        externalTimeout,
		ProofSubmissionWindow:  proofWindow,
		PricingCacheTTL:        pricingTTL,
		IdempotencyKeyTTL:      idemTTL,
		ConferenceCodeAttempts: getEnvInt("CONFERENCE_CODE_ATTEMPTS", 5),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// Connect opens the Mongo client, registering the given codecs, and pings it.
func (cfg *Config) Connect(ctx context.Context, registry *bsoncodec.Registry) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.MongoURI)
	if registry != nil {
		opts.SetRegistry(registry)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo ping: %w", err)
	}
	cfg.MongoClient = client
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
