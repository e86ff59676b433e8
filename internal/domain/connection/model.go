package connection

import (
	"time"

	"github.com/watercoop/waterbill/internal/types"
)

// StatusRecord is one entry in a client's connection status history.
// The current status is the most recent record.
type StatusRecord struct {
	ID               string                       `db:"id" json:"id"`
	ClientID         string                       `db:"client_id" json:"client_id"`
	ConnectionStatus types.ConnectionStatus       `db:"connection_status" json:"connection_status"`
	Reason           types.ConnectionStatusReason `db:"reason" json:"reason"`
	// BillID is the bill that drove the transition, nil for the registration record
	BillID      *string   `db:"bill_id" json:"bill_id,omitempty"`
	EffectiveAt time.Time `db:"effective_at" json:"effective_at"`

	types.BaseModel
}
