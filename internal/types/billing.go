package types

import (
	"fmt"

	"github.com/samber/lo"
)

// BillPaymentStatus is derived from a bill's amount and the cumulative amount paid against it.
// It is never set directly: see bill.DerivePaymentStatus.
type BillPaymentStatus string

const (
	BillPaymentStatusUnpaid    BillPaymentStatus = "unpaid"
	BillPaymentStatusPaid      BillPaymentStatus = "paid"
	BillPaymentStatusUnderpaid BillPaymentStatus = "underpaid"
	BillPaymentStatusOverpaid  BillPaymentStatus = "overpaid"
)

func (s BillPaymentStatus) String() string {
	return string(s)
}

func (s BillPaymentStatus) Validate() error {
	allowed := []BillPaymentStatus{
		BillPaymentStatusUnpaid,
		BillPaymentStatusPaid,
		BillPaymentStatusUnderpaid,
		BillPaymentStatusOverpaid,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid bill payment status: %s", s)
	}
	return nil
}

// IsOpen reports whether the bill still expects money
func (s BillPaymentStatus) IsOpen() bool {
	return s == BillPaymentStatusUnpaid || s == BillPaymentStatusUnderpaid
}

// IsSettled reports whether the bill has been covered in full
func (s BillPaymentStatus) IsSettled() bool {
	return s == BillPaymentStatusPaid || s == BillPaymentStatusOverpaid
}

// Label is the text shown to cashiers
func (s BillPaymentStatus) Label() string {
	switch s {
	case BillPaymentStatusUnpaid:
		return "Unpaid"
	case BillPaymentStatusPaid:
		return "Paid"
	case BillPaymentStatusUnderpaid:
		return "Partially paid"
	case BillPaymentStatusOverpaid:
		return "Overpaid"
	}
	return string(s)
}

// OpenBillPaymentStatuses lists the statuses that block opening another bill
func OpenBillPaymentStatuses() []BillPaymentStatus {
	return []BillPaymentStatus{BillPaymentStatusUnpaid, BillPaymentStatusUnderpaid}
}

// ConnectionStatus is the state of a client's water service connection
type ConnectionStatus string

const (
	ConnectionStatusConnected           ConnectionStatus = "connected"
	ConnectionStatusDueForDisconnection ConnectionStatus = "due_for_disconnection"
	ConnectionStatusDisconnected        ConnectionStatus = "disconnected"
)

func (s ConnectionStatus) String() string {
	return string(s)
}

func (s ConnectionStatus) Validate() error {
	allowed := []ConnectionStatus{
		ConnectionStatusConnected,
		ConnectionStatusDueForDisconnection,
		ConnectionStatusDisconnected,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid connection status: %s", s)
	}
	return nil
}

func (s ConnectionStatus) Label() string {
	switch s {
	case ConnectionStatusConnected:
		return "Connected"
	case ConnectionStatusDueForDisconnection:
		return "Due for disconnection"
	case ConnectionStatusDisconnected:
		return "Disconnected"
	}
	return string(s)
}

// ConnectionStatusReason records which event caused a status record to be appended
type ConnectionStatusReason string

const (
	ConnectionStatusReasonRegistered   ConnectionStatusReason = "registered"
	ConnectionStatusReasonBillOverdue  ConnectionStatusReason = "bill_overdue"
	ConnectionStatusReasonGraceElapsed ConnectionStatusReason = "grace_period_elapsed"
	ConnectionStatusReasonBillSettled  ConnectionStatusReason = "bill_settled"
	ConnectionStatusReasonWithinTerms  ConnectionStatusReason = "within_terms"
)

// RateType selects how consumption is priced
type RateType string

const (
	RateTypeFlat   RateType = "flat"
	RateTypeTiered RateType = "tiered"
)

func (t RateType) Validate() error {
	if !lo.Contains([]RateType{RateTypeFlat, RateTypeTiered}, t) {
		return fmt.Errorf("invalid rate type: %s", t)
	}
	return nil
}
