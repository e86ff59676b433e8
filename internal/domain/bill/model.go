package bill

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/types"
)

// Bill is one billing period's charge and payment record for a client
type Bill struct {
	// ID is the unique identifier for the bill
	ID string `db:"id" json:"id"`

	// ClientID is the client the bill is issued to
	ClientID string `db:"client_id" json:"client_id"`

	// PreviousReading is the meter reading at the start of the period
	PreviousReading int64 `db:"previous_reading" json:"previous_reading"`

	// CurrentReading is the meter reading at the end of the period
	CurrentReading int64 `db:"current_reading" json:"current_reading"`

	// Consumption is CurrentReading minus PreviousReading, in cubic meters
	Consumption int64 `db:"consumption" json:"consumption"`

	// BillAmount is the consumption priced through the rate schedule
	BillAmount decimal.Decimal `db:"bill_amount" json:"bill_amount"`

	// Currency of every amount on the bill
	Currency string `db:"currency" json:"currency"`

	// PaymentStatus is derived from BillAmount and PaymentAmount
	PaymentStatus types.BillPaymentStatus `db:"payment_status" json:"payment_status"`

	// PaymentAmount is the cumulative amount applied to the bill
	PaymentAmount decimal.Decimal `db:"payment_amount" json:"payment_amount"`

	// RemainingBalance is what is left to pay. Zero unless underpaid or unpaid.
	RemainingBalance decimal.Decimal `db:"remaining_balance" json:"remaining_balance"`

	// PaymentExcess is what was paid above BillAmount. Zero unless overpaid.
	PaymentExcess decimal.Decimal `db:"payment_excess" json:"payment_excess"`

	// PaymentDate is set when the bill becomes paid or overpaid
	PaymentDate *time.Time `db:"payment_date" json:"payment_date,omitempty"`

	// DueDate is when the bill becomes overdue
	DueDate time.Time `db:"due_date" json:"due_date"`

	// DisconnectionDate is set when the client is disconnected over this bill
	DisconnectionDate *time.Time `db:"disconnection_date" json:"disconnection_date,omitempty"`

	// Version is incremented on every update and guards concurrent payments
	Version int64 `db:"version" json:"version"`

	types.BaseModel
}

// IsOpen reports whether the bill still expects money
func (b *Bill) IsOpen() bool {
	return b.PaymentStatus.IsOpen()
}

// IsSettled reports whether the bill is paid or overpaid
func (b *Bill) IsSettled() bool {
	return b.PaymentStatus.IsSettled()
}

// Copy returns a deep copy of the bill
func (b *Bill) Copy() *Bill {
	c := *b
	if b.PaymentDate != nil {
		t := *b.PaymentDate
		c.PaymentDate = &t
	}
	if b.DisconnectionDate != nil {
		t := *b.DisconnectionDate
		c.DisconnectionDate = &t
	}
	return &c
}

// PartialPayment is one payment event applied to a bill. Rows are append only.
type PartialPayment struct {
	ID string `db:"id" json:"id"`

	BillID   string `db:"bill_id" json:"bill_id"`
	ClientID string `db:"client_id" json:"client_id"`

	// AmountPaid is always positive
	AmountPaid decimal.Decimal `db:"amount_paid" json:"amount_paid"`

	PaymentDate time.Time `db:"payment_date" json:"payment_date"`

	// IdempotencyKey is unique per submission and rejects replays
	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key"`

	types.BaseModel
}

// DerivePaymentStatus computes the status of a bill from its amount and the
// cumulative amount paid against it
func DerivePaymentStatus(billAmount, paymentAmount decimal.Decimal) types.BillPaymentStatus {
	switch {
	case paymentAmount.IsZero() && billAmount.IsPositive():
		return types.BillPaymentStatusUnpaid
	case paymentAmount.Equal(billAmount):
		return types.BillPaymentStatusPaid
	case paymentAmount.LessThan(billAmount):
		return types.BillPaymentStatusUnderpaid
	default:
		return types.BillPaymentStatusOverpaid
	}
}
