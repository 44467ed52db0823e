package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store"
)

var hundred = decimal.NewFromInt(100)

// Pricing returns the singleton pricing configuration, served from the cache
// when one is configured.
func (s *Service) Pricing(ctx context.Context) (models.PricingConfig, error) {
	if s.cache != nil {
		cfg, ok, err := s.cache.Get(ctx)
		if err != nil {
			zap.L().Warn("pricing cache read failed", zap.Error(err))
		} else if ok {
			return cfg, nil
		}
	}

	cfg, err := s.store.GetPricing(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return models.PricingConfig{}, ErrPricingMissing
	}
	if err != nil {
		return models.PricingConfig{}, storeErr(err, "pricing")
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, cfg, s.opts.PricingCacheTTL); err != nil {
			zap.L().Warn("pricing cache write failed", zap.Error(err))
		}
	}
	return cfg, nil
}

// SetPricing validates and upserts the pricing singleton, then drops the cache.
func (s *Service) SetPricing(ctx context.Context, cfg models.PricingConfig) (models.PricingConfig, error) {
	if err := validatePricing(cfg); err != nil {
		return models.PricingConfig{}, err
	}
	cfg.ID = models.PricingConfigID
	cfg.UpdatedAt = s.now()
	if err := s.store.SetPricing(ctx, cfg); err != nil {
		return models.PricingConfig{}, storeErr(err, "pricing")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			zap.L().Warn("pricing cache invalidation failed", zap.Error(err))
		}
	}
	zap.L().Info("Pricing updated", zap.Int64("base_view", cfg.BaseView))
	return cfg, nil
}

func validatePricing(cfg models.PricingConfig) error {
	for name, rate := range map[string]decimal.Decimal{
		"gst_rate":                   cfg.GSTRate,
		"ad_commission":              cfg.AdCommission,
		"paid_conference_commission": cfg.PaidConferenceCommission,
	} {
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			return validationf("%s must be between 0 and 100", name)
		}
	}
	if cfg.BaseView <= 0 {
		return validationf("base_view must be positive")
	}
	if cfg.ReporterAcceptTimeInHours < 0 {
		return validationf("reporter_accept_time_in_hours cannot be negative")
	}
	if cfg.MinAdLength < 0 || (cfg.MaxAdLength > 0 && cfg.MinAdLength > cfg.MaxAdLength) {
		return validationf("min_ad_length must not exceed max_ad_length")
	}
	for _, money := range []decimal.Decimal{cfg.PerDayPrice, cfg.PerSecPrice, cfg.PerCityPrice, cfg.ReporterPrice, cfg.MinimumWithdrawAmountForReporter} {
		if money.IsNegative() {
			return validationf("prices cannot be negative")
		}
	}
	seen := make(map[string]struct{}, len(cfg.AdTypes))
	for _, t := range cfg.AdTypes {
		if t.Type == "" || t.Price.IsNegative() {
			return validationf("ad type entries need a name and a non-negative price")
		}
		if _, dup := seen[t.Type]; dup {
			return validationf("ad type %q listed twice", t.Type)
		}
		seen[t.Type] = struct{}{}
	}
	return nil
}

type AdQuoteInput struct {
	AdType        string
	RequiredViews int64
	AdLength      int
	Days          int
	Cities        int
}

type Quote struct {
	RequiredReporter int             `json:"required_reporter"`
	BaseView         int64           `json:"base_view"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	GST              decimal.Decimal `json:"gst"`
	Total            decimal.Decimal `json:"total"`
}

// RequiredReporters is ceil(requiredViews / baseView).
func RequiredReporters(requiredViews, baseView int64) int {
	if baseView <= 0 || requiredViews <= 0 {
		return 0
	}
	return int((requiredViews + baseView - 1) / baseView)
}

// QuoteAd prices an ad against cfg.
func QuoteAd(cfg models.PricingConfig, in AdQuoteInput) (Quote, error) {
	price, ok := cfg.PriceForAdType(in.AdType)
	if !ok {
		return Quote{}, validationf("unknown ad type %q", in.AdType)
	}
	if in.RequiredViews <= 0 {
		return Quote{}, validationf("required_views must be positive")
	}
	if in.AdLength < cfg.MinAdLength || (cfg.MaxAdLength > 0 && in.AdLength > cfg.MaxAdLength) {
		return Quote{}, validationf("ad_length must be between %d and %d seconds", cfg.MinAdLength, cfg.MaxAdLength)
	}
	if in.Days < 0 {
		return Quote{}, validationf("days cannot be negative")
	}
	cities := in.Cities
	if cities < 1 {
		cities = 1
	}

	reporters := RequiredReporters(in.RequiredViews, cfg.BaseView)
	perReporter := price.Add(cfg.PerSecPrice.Mul(decimal.NewFromInt(int64(in.AdLength))))
	subtotal := perReporter.Mul(decimal.NewFromInt(int64(reporters))).
		Add(cfg.PerDayPrice.Mul(decimal.NewFromInt(int64(in.Days)))).
		Add(cfg.PerCityPrice.Mul(decimal.NewFromInt(int64(cities)))).
		Round(2)
	gst := subtotal.Mul(cfg.GSTRate).Div(hundred).Round(2)

	return Quote{
		RequiredReporter: reporters,
		BaseView:         cfg.BaseView,
		Subtotal:         subtotal,
		GST:              gst,
		Total:            subtotal.Add(gst),
	}, nil
}

// QuotePaidConference prices n reporters at the flat reporter price plus GST.
func QuotePaidConference(cfg models.PricingConfig, n int) (Quote, error) {
	if n < 1 {
		return Quote{}, validationf("number_of_reporters must be at least 1")
	}
	subtotal := cfg.ReporterPrice.Mul(decimal.NewFromInt(int64(n))).Round(2)
	gst := subtotal.Mul(cfg.GSTRate).Div(hundred).Round(2)
	return Quote{
		RequiredReporter: n,
		Subtotal:         subtotal,
		GST:              gst,
		Total:            subtotal.Add(gst),
	}, nil
}
