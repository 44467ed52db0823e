// Package services holds the marketplace workflows: wallet ledger, pricing,
// the ad and conference lifecycles, the reporter assignment state machine,
// proof review and settlement.
package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/phillip/iinsaf-marketplace-go/metrics"
	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

// MediaStore stores an uploaded artifact and returns its public URL.
type MediaStore interface {
	Upload(ctx context.Context, file io.Reader, filename, folder string) (string, error)
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	FetchPayment(ctx context.Context, paymentID string) (models.GatewayPayment, error)
}

// ViewCounter returns the current view count of a published video.
type ViewCounter interface {
	Views(ctx context.Context, platform, videoURL string) (int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// IdempotencyStore remembers consumed keys for ttl.
type IdempotencyStore interface {
	// Claim returns false when key was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type PricingCache interface {
	Get(ctx context.Context) (models.PricingConfig, bool, error)
	Put(ctx context.Context, cfg models.PricingConfig, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Options tunes domain deadlines and retries.
type Options struct {
	ProofSubmissionWindow  time.Duration
	PricingCacheTTL        time.Duration
	IdempotencyKeyTTL      time.Duration
	ConferenceCodeAttempts int
	Currency               string
}

func (o Options) withDefaults() Options {
	if o.ProofSubmissionWindow <= 0 {
		o.ProofSubmissionWindow = 14 * time.Hour
	}
	if o.PricingCacheTTL <= 0 {
		o.PricingCacheTTL = 10 * time.Minute
	}
	if o.IdempotencyKeyTTL <= 0 {
		o.IdempotencyKeyTTL = 72 * time.Hour
	}
	if o.ConferenceCodeAttempts <= 0 {
		o.ConferenceCodeAttempts = 5
	}
	if o.Currency == "" {
		o.Currency = "INR"
	}
	return o
}

type Deps struct {
	Store        store.Store
	Media        MediaStore
	Gateway      PaymentGateway
	Views        ViewCounter
	Notifier     Notifier
	Idempotency  IdempotencyStore
	PricingCache PricingCache
	Clock        Clock
	Metrics      *metrics.Metrics
	Options      Options
}

// Service is the entry point used by the HTTP controllers.
type Service struct {
	store   store.Store
	media   MediaStore
	gateway PaymentGateway
	views   ViewCounter
	notify  Notifier
	idem    IdempotencyStore
	cache   PricingCache
	clock   Clock
	metrics *metrics.Metrics
	opts    Options
	codes   codeGenerator
}

func New(d Deps) *Service {
	clock := d.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Service{
		store:   d.Store,
		media:   d.Media,
		gateway: d.Gateway,
		views:   d.Views,
		notify:  d.Notifier,
		idem:    d.Idempotency,
		cache:   d.PricingCache,
		clock:   clock,
		metrics: d.Metrics,
		opts:    d.Options.withDefaults(),
		codes:   newCodeGenerator(),
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

// Actor is the authenticated caller handed over by the auth middleware.
type Actor struct {
	ID       primitive.ObjectID
	Role     string
	Verified bool
	Sections []string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleSuperAdmin
}

// notifyAll delivers n to each recipient. Failures are logged and dropped.
func (s *Service) notifyAll(ctx context.Context, base models.Notification, recipients []models.User) {
	if s.notify == nil {
		return
	}
	for _, r := range recipients {
		n := base
		n.Recipient = r
		if err := s.notify.Notify(ctx, n); err != nil {
			s.metrics.ObserveNotificationFailure()
			zap.L().Warn("notification failed",
				zap.String("kind", n.Kind),
				zap.String("entity_id", n.EntityID.Hex()),
				zap.String("recipient", r.ID.Hex()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) notifyUser(ctx context.Context, base models.Notification, userID primitive.ObjectID) {
	if s.notify == nil {
		return
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		zap.L().Warn("notification recipient lookup failed", zap.String("user_id", userID.Hex()), zap.Error(err))
		return
	}
	s.notifyAll(ctx, base, []models.User{user})
}
