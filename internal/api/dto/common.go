package dto

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// FormatAmount renders a money amount the way cashiers read it, e.g. "PHP 1,250.50"
func FormatAmount(amount decimal.Decimal, currency string) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-3:]

	grouped := make([]byte, 0, len(whole)+len(whole)/3)
	for i := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, whole[i])
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	if currency == "" {
		return fmt.Sprintf("%s%s%s", sign, grouped, frac)
	}
	return fmt.Sprintf("%s %s%s%s", currency, sign, grouped, frac)
}
