package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingConfigID is the fixed _id of the singleton pricing document.
const PricingConfigID = "pricing"

type AdTypePrice struct {
	Type  string          `bson:"type" json:"type" binding:"required"`
	Price decimal.Decimal `bson:"price" json:"price"`
}

// PricingConfig is the admin-managed singleton read by every financial computation.
type PricingConfig struct {
	ID                               string          `bson:"_id" json:"-"`
	AdTypes                          []AdTypePrice   `bson:"ad_types" json:"ad_types"`
	ChannelTypes                     []string        `bson:"channel_types" json:"channel_types"`
	Platforms                        []string        `bson:"platforms" json:"platforms"`
	GSTRate                          decimal.Decimal `bson:"gst_rate" json:"gst_rate"`
	PerDayPrice                      decimal.Decimal `bson:"per_day_price" json:"per_day_price"`
	PerSecPrice                      decimal.Decimal `bson:"per_sec_price" json:"per_sec_price"`
	PerCityPrice                     decimal.Decimal `bson:"per_city_price" json:"per_city_price"`
	BaseView                         int64           `bson:"base_view" json:"base_view"`
	AdCommission                     decimal.Decimal `bson:"ad_commission" json:"ad_commission"`
	ReporterPrice                    decimal.Decimal `bson:"reporter_price" json:"reporter_price"`
	PaidConferenceCommission         decimal.Decimal `bson:"paid_conference_commission" json:"paid_conference_commission"`
	ReporterAcceptTimeInHours        int             `bson:"reporter_accept_time_in_hours" json:"reporter_accept_time_in_hours"`
	MinimumWithdrawAmountForReporter decimal.Decimal `bson:"minimum_withdraw_amount_for_reporter" json:"minimum_withdraw_amount_for_reporter"`
	MaxAdLength                      int             `bson:"max_ad_length" json:"max_ad_length"`
	MinAdLength                      int             `bson:"min_ad_length" json:"min_ad_length"`
	UpdatedAt                        time.Time       `bson:"updated_at" json:"updated_at"`
}

// PriceForAdType returns the configured price for adType.
func (p PricingConfig) PriceForAdType(adType string) (decimal.Decimal, bool) {
	for _, t := range p.AdTypes {
		if t.Type == adType {
			return t.Price, true
		}
	}
	return decimal.Zero, false
}

// HasPlatform reports whether platform is in the configured platform list.
// An empty list accepts any platform.
func (p PricingConfig) HasPlatform(platform string) bool {
	if len(p.Platforms) == 0 {
		return true
	}
	for _, pl := range p.Platforms {
		if pl == platform {
			return true
		}
	}
	return false
}

// AcceptWindow is the time a reporter has to accept after approval.
func (p PricingConfig) AcceptWindow() time.Duration {
	return time.Duration(p.ReporterAcceptTimeInHours) * time.Hour
}
