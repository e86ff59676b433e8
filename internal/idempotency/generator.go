package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/domain/rate"
)

const paymentKeyPrefix = "payment"

// PaymentParams is one payment submission as the cashier made it: the bill,
// the payment amount they saw on it, and the amount received.
type PaymentParams struct {
	BillID                string
	ExpectedPaymentAmount decimal.Decimal
	Amount                decimal.Decimal
}

func (p PaymentParams) canonical() string {
	return fmt.Sprintf("bill=%s|expected=%s|amount=%s",
		p.BillID,
		p.ExpectedPaymentAmount.StringFixed(rate.AmountPrecision),
		p.Amount.StringFixed(rate.AmountPrecision),
	)
}

// Generator generates idempotency keys
type Generator struct{}

// NewGenerator creates a new idempotency key generator
func NewGenerator() *Generator {
	return &Generator{}
}

// PaymentKey derives the key stored with a partial payment. Resubmitting the
// same payment against the same bill state yields the same key.
func (g *Generator) PaymentKey(p PaymentParams) string {
	hash := sha256.Sum256([]byte(p.canonical()))
	return fmt.Sprintf("%s-%s", paymentKeyPrefix, hex.EncodeToString(hash[:8]))
}
