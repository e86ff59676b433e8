package bill

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/watercoop/waterbill/internal/domain/rate"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// Ledger owns the lifecycle of bills: opening them against a rate schedule
// and applying payments through the reconciler
type Ledger struct {
	schedule      rate.Schedule
	reconciler    *Reconciler
	currency      string
	dueDateOffset time.Duration
}

func NewLedger(schedule rate.Schedule, currency string, dueDateOffsetDays int) *Ledger {
	return &Ledger{
		schedule:      schedule,
		reconciler:    NewReconciler(),
		currency:      currency,
		dueDateOffset: time.Duration(dueDateOffsetDays) * 24 * time.Hour,
	}
}

// OpenInput carries what Open needs to know about the client
type OpenInput struct {
	ClientID        string
	PreviousReading int64
	CurrentReading  int64
	// OpenBill is the client's current unpaid or underpaid bill, nil when there is none
	OpenBill  *Bill
	Now       time.Time
	CreatedBy string
}

// Open creates a new unpaid bill for the client
func (l *Ledger) Open(in OpenInput) (*Bill, error) {
	if in.OpenBill != nil && in.OpenBill.IsOpen() {
		return nil, ierr.NewErrorf("client %s already has open bill %s", in.ClientID, in.OpenBill.ID).
			WithHint("This client still has an unpaid bill. Settle it before creating a new one").
			WithReportableDetails(map[string]any{
				"client_id":      in.ClientID,
				"open_bill_id":   in.OpenBill.ID,
				"payment_status": in.OpenBill.PaymentStatus,
			}).
			Mark(ierr.ErrOpenBillExists)
	}

	reading, err := ComputeBill(in.PreviousReading, in.CurrentReading, l.schedule)
	if err != nil {
		return nil, err
	}

	b := &Bill{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILL),
		ClientID:         in.ClientID,
		PreviousReading:  in.PreviousReading,
		CurrentReading:   in.CurrentReading,
		Consumption:      reading.Consumption,
		BillAmount:       reading.BillAmount,
		Currency:         l.currency,
		PaymentAmount:    decimal.Zero,
		RemainingBalance: reading.BillAmount,
		PaymentExcess:    decimal.Zero,
		DueDate:          in.Now.Add(l.dueDateOffset),
		Version:          1,
		BaseModel: types.BaseModel{
			Status:    types.StatusPublished,
			CreatedAt: in.Now,
			UpdatedAt: in.Now,
			CreatedBy: in.CreatedBy,
			UpdatedBy: in.CreatedBy,
		},
	}
	// a zero amount bill owes nothing and is settled on creation
	settle(b, in.Now)

	return b, nil
}

// ApplyPayment applies amount to the bill. The caller persists the returned
// bill and installment together in one transaction.
func (l *Ledger) ApplyPayment(b *Bill, amount decimal.Decimal, now time.Time) (*Bill, *PartialPayment, error) {
	return l.reconciler.Apply(b, amount, now)
}
