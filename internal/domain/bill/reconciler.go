package bill

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// Reconciler applies payments to bills. It never touches persistence.
type Reconciler struct{}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Apply returns the bill as it stands after the payment together with the
// installment record. The input bill is left unmodified.
func (r *Reconciler) Apply(b *Bill, amount decimal.Decimal, now time.Time) (*Bill, *PartialPayment, error) {
	if !amount.IsPositive() {
		return nil, nil, ierr.NewErrorf("payment amount %s is not positive", amount).
			WithHint("Payment amount must be greater than zero").
			WithReportableDetails(map[string]any{
				"bill_id": b.ID,
				"amount":  amount.String(),
			}).
			Mark(ierr.ErrNonPositiveAmount)
	}

	if b.IsSettled() {
		return nil, nil, ierr.NewErrorf("bill %s is already %s", b.ID, b.PaymentStatus).
			WithHint("This bill is already settled. Open a new bill to accept further payments").
			WithReportableDetails(map[string]any{
				"bill_id":        b.ID,
				"payment_status": b.PaymentStatus,
			}).
			Mark(ierr.ErrBillAlreadySettled)
	}

	updated := b.Copy()
	updated.PaymentAmount = b.PaymentAmount.Add(amount)
	settle(updated, now)
	updated.Version = b.Version + 1
	updated.UpdatedAt = now

	payment := &PartialPayment{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PARTIAL_PAYMENT),
		BillID:      b.ID,
		ClientID:    b.ClientID,
		AmountPaid:  amount,
		PaymentDate: now,
		BaseModel: types.BaseModel{
			Status:    types.StatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: b.UpdatedBy,
			UpdatedBy: b.UpdatedBy,
		},
	}

	return updated, payment, nil
}

// settle recomputes the derived payment fields from BillAmount and PaymentAmount
func settle(b *Bill, now time.Time) {
	b.PaymentStatus = DerivePaymentStatus(b.BillAmount, b.PaymentAmount)

	switch b.PaymentStatus {
	case types.BillPaymentStatusPaid:
		b.RemainingBalance = decimal.Zero
		b.PaymentExcess = decimal.Zero
	case types.BillPaymentStatusOverpaid:
		b.RemainingBalance = decimal.Zero
		b.PaymentExcess = b.PaymentAmount.Sub(b.BillAmount)
	default:
		b.RemainingBalance = b.BillAmount.Sub(b.PaymentAmount)
		b.PaymentExcess = decimal.Zero
	}

	if b.PaymentStatus.IsSettled() && b.PaymentDate == nil {
		b.PaymentDate = &now
	}
}
