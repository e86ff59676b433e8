package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/domain/rate"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
	"github.com/watercoop/waterbill/internal/validator"
)

// CreateBillRequest records a meter reading and opens a bill for it
type CreateBillRequest struct {
	ClientID       string `json:"client_id" validate:"required"`
	CurrentReading int64  `json:"current_reading"`
	// PreviousReading overrides the reading carried over from the last bill,
	// e.g. after a meter replacement
	PreviousReading *int64 `json:"previous_reading,omitempty"`
}

func (r *CreateBillRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// PayBillRequest applies one payment to a bill
type PayBillRequest struct {
	BillID string          `json:"-" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
	// ExpectedPaymentAmount is the bill's payment amount as the cashier last saw it.
	// The payment is rejected when the bill has moved on since.
	ExpectedPaymentAmount *decimal.Decimal `json:"expected_payment_amount"`
}

func (r *PayBillRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.ExpectedPaymentAmount == nil {
		return ierr.NewError("expected_payment_amount is required").
			WithHint("Reload the bill before accepting a payment").
			Mark(ierr.ErrValidation)
	}
	if r.ExpectedPaymentAmount.IsNegative() {
		return ierr.NewErrorf("expected_payment_amount %s is negative", r.ExpectedPaymentAmount).
			WithHint("Expected payment amount cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if err := validateCents("amount", r.Amount); err != nil {
		return err
	}
	return validateCents("expected_payment_amount", *r.ExpectedPaymentAmount)
}

// validateCents rejects amounts finer than the stored precision
func validateCents(field string, amount decimal.Decimal) error {
	if amount.Equal(amount.Round(rate.AmountPrecision)) {
		return nil
	}
	return ierr.NewErrorf("%s %s has more than %d decimal places", field, amount, rate.AmountPrecision).
		WithHintf("Enter %s in whole cents", field).
		WithReportableDetails(map[string]any{
			field: amount.String(),
		}).
		Mark(ierr.ErrValidation)
}

// BillResponse is the fully computed view of a bill. Nothing shown to the
// cashier needs to be derived again on the client side.
type BillResponse struct {
	*bill.Bill

	AccountNumber string `json:"account_number,omitempty"`
	ClientName    string `json:"client_name,omitempty"`

	PaymentStatusLabel string `json:"payment_status_label"`
	IsOverdue          bool   `json:"is_overdue"`
	DaysOverdue        int    `json:"days_overdue"`
	DueDateDisplay     string `json:"due_date_display"`

	FormattedBillAmount       string `json:"formatted_bill_amount"`
	FormattedPaymentAmount    string `json:"formatted_payment_amount"`
	FormattedRemainingBalance string `json:"formatted_remaining_balance"`
	FormattedPaymentExcess    string `json:"formatted_payment_excess"`

	ConnectionStatus      types.ConnectionStatus `json:"connection_status,omitempty"`
	ConnectionStatusLabel string                 `json:"connection_status_label,omitempty"`
}

// ListBillsResponse represents the response for listing bills
type ListBillsResponse = types.ListResponse[*BillResponse]

// DateDisplayLayout is how dates are shown on bills
const DateDisplayLayout = "Jan 02, 2006"

func NewBillResponse(b *bill.Bill, c *client.Client, status *connection.StatusRecord, now time.Time) *BillResponse {
	daysOverdue := connection.DaysOverdue(b, now)
	resp := &BillResponse{
		Bill:                      b,
		PaymentStatusLabel:        b.PaymentStatus.Label(),
		IsOverdue:                 b.IsOpen() && now.After(b.DueDate),
		DaysOverdue:               daysOverdue,
		DueDateDisplay:            b.DueDate.Format(DateDisplayLayout),
		FormattedBillAmount:       FormatAmount(b.BillAmount, b.Currency),
		FormattedPaymentAmount:    FormatAmount(b.PaymentAmount, b.Currency),
		FormattedRemainingBalance: FormatAmount(b.RemainingBalance, b.Currency),
		FormattedPaymentExcess:    FormatAmount(b.PaymentExcess, b.Currency),
	}
	if c != nil {
		resp.AccountNumber = c.AccountNumber
		resp.ClientName = c.FullName()
	}
	if status != nil {
		resp.ConnectionStatus = status.ConnectionStatus
		resp.ConnectionStatusLabel = status.ConnectionStatus.Label()
	}
	return resp
}

type PartialPaymentResponse struct {
	*bill.PartialPayment
	FormattedAmountPaid string `json:"formatted_amount_paid"`
}

// ListPartialPaymentsResponse is the installment history of one bill
type ListPartialPaymentsResponse struct {
	BillID             string                    `json:"bill_id"`
	Items              []*PartialPaymentResponse `json:"items"`
	TotalPaid          decimal.Decimal           `json:"total_paid"`
	FormattedTotalPaid string                    `json:"formatted_total_paid"`
}

func NewListPartialPaymentsResponse(b *bill.Bill, payments []*bill.PartialPayment) *ListPartialPaymentsResponse {
	resp := &ListPartialPaymentsResponse{
		BillID:    b.ID,
		Items:     make([]*PartialPaymentResponse, 0, len(payments)),
		TotalPaid: decimal.Zero,
	}
	for _, p := range payments {
		resp.Items = append(resp.Items, &PartialPaymentResponse{
			PartialPayment:      p,
			FormattedAmountPaid: FormatAmount(p.AmountPaid, b.Currency),
		})
		resp.TotalPaid = resp.TotalPaid.Add(p.AmountPaid)
	}
	resp.FormattedTotalPaid = FormatAmount(resp.TotalPaid, b.Currency)
	return resp
}
