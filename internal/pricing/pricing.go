// Package pricing turns a mentor's hourly rate, a session length and an
// optional package into a fixed session price and its revenue split.
//
// Amounts are rounded to two decimal places (the currency minor unit) with
// half-away-from-zero rounding. The provider and platform shares are each
// rounded from the total on their own, so their sum can differ from the total
// by at most one minor unit.
package pricing

import (
	"strings"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/shopspring/decimal"
)

const (
	MinDurationMinutes = 30
	MaxDurationMinutes = 180

	// MinorUnitPlaces is the number of decimal places kept for money.
	MinorUnitPlaces = 2

	PackageNone     = "NONE"
	PackageStarter3 = "STARTER_3"
	PackageGrowth5  = "GROWTH_5"
)

var (
	providerRate = decimal.RequireFromString("0.70")
	platformRate = decimal.RequireFromString("0.30")
	hundred      = decimal.NewFromInt(100)
	sixty        = decimal.NewFromInt(60)
)

type PackageOffer struct {
	Code            string `json:"code"`
	SessionCount    int    `json:"session_count"`
	DiscountPercent int    `json:"discount_percent"`
	Label           string `json:"label"`
}

var packages = map[string]PackageOffer{
	PackageNone:     {Code: PackageNone, SessionCount: 1, DiscountPercent: 0, Label: "Single session"},
	PackageStarter3: {Code: PackageStarter3, SessionCount: 3, DiscountPercent: 10, Label: "Starter pack (3 sessions)"},
	PackageGrowth5:  {Code: PackageGrowth5, SessionCount: 5, DiscountPercent: 15, Label: "Growth pack (5 sessions)"},
}

// LookupPackage resolves a package code. The empty code means no package.
func LookupPackage(code string) (PackageOffer, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		normalized = PackageNone
	}
	offer, ok := packages[normalized]
	return offer, ok
}

// Packages returns the package table ordered by session count.
func Packages() []PackageOffer {
	return []PackageOffer{packages[PackageNone], packages[PackageStarter3], packages[PackageGrowth5]}
}

type Quote struct {
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	DurationMinutes int             `json:"duration_minutes"`
	PackageCode     string          `json:"package_code"`
	PackageLabel    string          `json:"package_label"`
	SessionsCount   int             `json:"sessions_count"`
	DiscountPercent int             `json:"discount_percent"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PlatformShare   decimal.Decimal `json:"platform_share"`
	ProviderShare   decimal.Decimal `json:"provider_share"`
}

func ClampDuration(minutes int) int {
	if minutes < MinDurationMinutes {
		return MinDurationMinutes
	}
	if minutes > MaxDurationMinutes {
		return MaxDurationMinutes
	}
	return minutes
}

func Compute(hourlyRate decimal.Decimal, durationMinutes int, packageCode string) (Quote, error) {
	if !hourlyRate.IsPositive() {
		return Quote{}, apperrors.Validation("hourly_rate", "must be greater than 0")
	}
	if durationMinutes <= 0 {
		return Quote{}, apperrors.Validation("duration_minutes", "must be greater than 0")
	}
	offer, ok := LookupPackage(packageCode)
	if !ok {
		return Quote{}, apperrors.Validation("package_code", "unknown package "+packageCode)
	}

	duration := ClampDuration(durationMinutes)
	base := hourlyRate.Mul(decimal.NewFromInt(int64(duration))).Div(sixty)

	total := base.
		Mul(decimal.NewFromInt(int64(offer.SessionCount))).
		Mul(hundred.Sub(decimal.NewFromInt(int64(offer.DiscountPercent)))).
		Div(hundred).
		Round(MinorUnitPlaces)

	platform, provider := Split(total)

	return Quote{
		HourlyRate:      hourlyRate,
		DurationMinutes: duration,
		PackageCode:     offer.Code,
		PackageLabel:    offer.Label,
		SessionsCount:   offer.SessionCount,
		DiscountPercent: offer.DiscountPercent,
		UnitPrice:       base.Round(MinorUnitPlaces),
		TotalAmount:     total,
		PlatformShare:   platform,
		ProviderShare:   provider,
	}, nil
}

// Split divides a total into the platform (30%) and provider (70%) shares.
func Split(total decimal.Decimal) (platform, provider decimal.Decimal) {
	platform = total.Mul(platformRate).Round(MinorUnitPlaces)
	provider = total.Mul(providerRate).Round(MinorUnitPlaces)
	return platform, provider
}

// MinorUnits converts a decimal amount to the gateway's integer minor unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -MinorUnitPlaces)
}
