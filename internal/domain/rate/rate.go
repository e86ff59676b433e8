package rate

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/config"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// AmountPrecision is the number of decimal places bill amounts are rounded to
const AmountPrecision int32 = 2

// Schedule prices a consumption in cubic meters
type Schedule interface {
	Price(consumption int64) decimal.Decimal
	Type() types.RateType
}

// Flat charges the same unit price for every cubic meter
type Flat struct {
	UnitPrice     decimal.Decimal
	MinimumCharge decimal.Decimal
}

func (f Flat) Type() types.RateType { return types.RateTypeFlat }

func (f Flat) Price(consumption int64) decimal.Decimal {
	amount := f.UnitPrice.Mul(decimal.NewFromInt(consumption))
	return applyMinimum(amount, f.MinimumCharge)
}

// Tier is one band of a graduated schedule. A nil UpTo is unbounded.
type Tier struct {
	UpTo      *int64
	UnitPrice decimal.Decimal
}

// Tiered prices each band of consumption at its own unit price
type Tiered struct {
	Tiers         []Tier
	MinimumCharge decimal.Decimal
}

func (t Tiered) Type() types.RateType { return types.RateTypeTiered }

func (t Tiered) Price(consumption int64) decimal.Decimal {
	amount := decimal.Zero
	var lower int64
	remaining := consumption

	for _, tier := range t.Tiers {
		if remaining <= 0 {
			break
		}

		units := remaining
		if tier.UpTo != nil {
			units = lo.Min([]int64{remaining, *tier.UpTo - lower})
			lower = *tier.UpTo
		}
		if units <= 0 {
			continue
		}

		amount = amount.Add(tier.UnitPrice.Mul(decimal.NewFromInt(units)))
		remaining -= units
	}

	// consumption past a bounded last tier is charged at that tier's price
	if remaining > 0 && len(t.Tiers) > 0 {
		last := t.Tiers[len(t.Tiers)-1]
		amount = amount.Add(last.UnitPrice.Mul(decimal.NewFromInt(remaining)))
	}

	return applyMinimum(amount, t.MinimumCharge)
}

func applyMinimum(amount, minimum decimal.Decimal) decimal.Decimal {
	if amount.LessThan(minimum) {
		amount = minimum
	}
	return amount.Round(AmountPrecision)
}

// FromConfig builds the schedule described by the billing configuration
func FromConfig(cfg config.RateConfig) (Schedule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("invalid %s rate schedule", cfg.Type).
			WithHint("The configured rate schedule is invalid").
			Mark(ierr.ErrValidation)
	}

	minimum := decimal.Zero
	if cfg.MinimumCharge != "" {
		minimum = decimal.RequireFromString(cfg.MinimumCharge)
	}

	switch cfg.Type {
	case types.RateTypeTiered:
		tiers := make([]Tier, 0, len(cfg.Tiers))
		var last int64
		for i, tc := range cfg.Tiers {
			tier := Tier{UnitPrice: decimal.RequireFromString(tc.UnitPrice)}
			if tc.UpTo != "" {
				upTo := decimal.RequireFromString(tc.UpTo).IntPart()
				if upTo <= last {
					return nil, ierr.NewErrorf("tier %d upper bound %d is not above %d", i, upTo, last).
						WithHint("Rate tiers must be listed in increasing order").
						Mark(ierr.ErrValidation)
				}
				last = upTo
				tier.UpTo = lo.ToPtr(upTo)
			}
			tiers = append(tiers, tier)
		}
		return Tiered{Tiers: tiers, MinimumCharge: minimum}, nil
	default:
		return Flat{
			UnitPrice:     decimal.RequireFromString(cfg.FlatRate),
			MinimumCharge: minimum,
		}, nil
	}
}
