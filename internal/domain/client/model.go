package client

import (
	"strings"

	"github.com/watercoop/waterbill/internal/types"
)

// Client is a registered service connection of the cooperative
type Client struct {
	// ID is the unique identifier for the client
	ID string `db:"id" json:"id"`

	// AccountNumber is the human readable identifier in NNNN-LL format.
	// It is assigned at registration and never changes.
	AccountNumber string `db:"account_number" json:"account_number"`

	FirstName  string `db:"first_name" json:"first_name"`
	MiddleName string `db:"middle_name" json:"middle_name"`
	LastName   string `db:"last_name" json:"last_name"`

	ContactNumber string `db:"contact_number" json:"contact_number"`
	Email         string `db:"email" json:"email"`
	Address       string `db:"address" json:"address"`

	// MeterNumber is the serial of the installed meter
	MeterNumber string `db:"meter_number" json:"meter_number"`

	// InitialMeterReading is the reading at installation, used as the
	// previous reading of the client's first bill
	InitialMeterReading int64 `db:"initial_meter_reading" json:"initial_meter_reading"`

	types.BaseModel
}

// FullName joins the name parts, skipping the empty ones
func (c *Client) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.FirstName, c.MiddleName, c.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
