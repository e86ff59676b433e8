package events

import (
	"encoding/json"
	"time"

	"github.com/watercoop/waterbill/internal/types"
)

// Event names published by the billing service
const (
	EventBillCreated                   = "bill.created"
	EventBillPaymentApplied            = "bill.payment_applied"
	EventClientRegistered              = "client.registered"
	EventClientConnectionStatusChanged = "client.connection_status_changed"
)

// BillingEvent is the envelope of every event leaving the billing service
type BillingEvent struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	ClientID  string          `json:"client_id"`
	BillID    string          `json:"bill_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewBillingEvent builds an event carrying payload marshalled as JSON
func NewBillingEvent(name, clientID, billID string, timestamp time.Time, payload any) (*BillingEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &BillingEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		EventName: name,
		ClientID:  clientID,
		BillID:    billID,
		Timestamp: timestamp,
		Payload:   raw,
	}, nil
}
