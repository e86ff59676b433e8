package connection

import (
	"time"

	"github.com/watercoop/waterbill/internal/domain/bill"
	"github.com/watercoop/waterbill/internal/types"
)

// Policy derives a client's connection status from the aging and payment
// state of its governing bill
type Policy struct {
	gracePeriod time.Duration
}

func NewPolicy(disconnectionGraceDays int) *Policy {
	return &Policy{gracePeriod: time.Duration(disconnectionGraceDays) * 24 * time.Hour}
}

// Decision is the outcome of evaluating a client
type Decision struct {
	Status types.ConnectionStatus
	Reason types.ConnectionStatusReason
	// Disconnect is true when the governing bill should have its disconnection date recorded
	Disconnect bool
}

// Evaluate derives the status for a governing bill at now. The governing
// bill is the client's open bill, or its latest bill when none is open.
func (p *Policy) Evaluate(governing *bill.Bill, now time.Time) Decision {
	if governing == nil || governing.IsSettled() {
		return Decision{Status: types.ConnectionStatusConnected, Reason: types.ConnectionStatusReasonBillSettled}
	}

	if now.After(governing.DueDate.Add(p.gracePeriod)) {
		return Decision{
			Status:     types.ConnectionStatusDisconnected,
			Reason:     types.ConnectionStatusReasonGraceElapsed,
			Disconnect: governing.DisconnectionDate == nil,
		}
	}

	if now.After(governing.DueDate) {
		return Decision{Status: types.ConnectionStatusDueForDisconnection, Reason: types.ConnectionStatusReasonBillOverdue}
	}

	return Decision{Status: types.ConnectionStatusConnected, Reason: types.ConnectionStatusReasonWithinTerms}
}

// Transition returns the record to append when the decision differs from the
// current record, or nil when the status is unchanged
func (p *Policy) Transition(current *StatusRecord, clientID string, governing *bill.Bill, now time.Time) (*StatusRecord, Decision) {
	d := p.Evaluate(governing, now)

	if current != nil && current.ConnectionStatus == d.Status {
		return nil, d
	}
	if current == nil && d.Status == types.ConnectionStatusConnected {
		d.Reason = types.ConnectionStatusReasonRegistered
	}

	rec := &StatusRecord{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONNECTION_STATUS),
		ClientID:         clientID,
		ConnectionStatus: d.Status,
		Reason:           d.Reason,
		EffectiveAt:      now,
		BaseModel: types.BaseModel{
			Status:    types.StatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if governing != nil {
		id := governing.ID
		rec.BillID = &id
	}
	return rec, d
}

// DaysOverdue is the number of whole days now is past the bill's due date, zero when not overdue or settled
func DaysOverdue(b *bill.Bill, now time.Time) int {
	if b == nil || b.IsSettled() || !now.After(b.DueDate) {
		return 0
	}
	return int(now.Sub(b.DueDate).Hours() / 24)
}
