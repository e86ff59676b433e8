package dto

import (
	"time"

	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/types"
)

type ConnectionStatusResponse struct {
	ID               string                       `json:"id"`
	ClientID         string                       `json:"client_id"`
	ConnectionStatus types.ConnectionStatus       `json:"connection_status"`
	Label            string                       `json:"label"`
	Reason           types.ConnectionStatusReason `json:"reason"`
	BillID           *string                      `json:"bill_id,omitempty"`
	EffectiveAt      time.Time                    `json:"effective_at"`
}

func NewConnectionStatusResponse(r *connection.StatusRecord) *ConnectionStatusResponse {
	return &ConnectionStatusResponse{
		ID:               r.ID,
		ClientID:         r.ClientID,
		ConnectionStatus: r.ConnectionStatus,
		Label:            r.ConnectionStatus.Label(),
		Reason:           r.Reason,
		BillID:           r.BillID,
		EffectiveAt:      r.EffectiveAt,
	}
}

// ConnectionStatusHistoryResponse lists a client's status records oldest first
type ConnectionStatusHistoryResponse struct {
	ClientID string                      `json:"client_id"`
	Items    []*ConnectionStatusResponse `json:"items"`
}

// EvaluateConnectionStatusesRequest triggers a sweep. At defaults to the current time.
type EvaluateConnectionStatusesRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// ConnectionStatusSweepFailure reports a client the sweep could not evaluate
type ConnectionStatusSweepFailure struct {
	ClientID string `json:"client_id"`
	BillID   string `json:"bill_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type EvaluateConnectionStatusesResponse struct {
	EvaluatedAt time.Time                       `json:"evaluated_at"`
	Evaluated   int                             `json:"evaluated"`
	Transitions []*ConnectionStatusResponse     `json:"transitions"`
	Failures    []*ConnectionStatusSweepFailure `json:"failures,omitempty"`
}
