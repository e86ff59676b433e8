package bill

import (
	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/domain/rate"
	ierr "github.com/watercoop/waterbill/internal/errors"
)

// Reading is the priced result of a pair of meter readings
type Reading struct {
	Consumption int64
	BillAmount  decimal.Decimal
}

// ComputeBill turns previous and current meter readings into a consumption
// and the amount owed for it
func ComputeBill(previousReading, currentReading int64, schedule rate.Schedule) (Reading, error) {
	if previousReading < 0 || currentReading < 0 {
		return Reading{}, ierr.NewError("meter readings must not be negative").
			WithHint("Meter readings must be zero or greater").
			WithReportableDetails(map[string]any{
				"previous_reading": previousReading,
				"current_reading":  currentReading,
			}).
			Mark(ierr.ErrInvalidReading)
	}

	if currentReading < previousReading {
		return Reading{}, ierr.NewErrorf("current reading %d is lower than previous reading %d", currentReading, previousReading).
			WithHintf("Current reading must be at least %d", previousReading).
			WithReportableDetails(map[string]any{
				"previous_reading": previousReading,
				"current_reading":  currentReading,
			}).
			Mark(ierr.ErrInvalidReading)
	}

	consumption := currentReading - previousReading
	return Reading{
		Consumption: consumption,
		BillAmount:  schedule.Price(consumption),
	}, nil
}
