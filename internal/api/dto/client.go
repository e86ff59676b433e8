package dto

import (
	"context"
	"strings"
	"time"

	"github.com/watercoop/waterbill/internal/domain/client"
	"github.com/watercoop/waterbill/internal/domain/connection"
	"github.com/watercoop/waterbill/internal/types"
	"github.com/watercoop/waterbill/internal/validator"
)

// RegisterClientRequest is what staff fill in when a new service connection is installed
type RegisterClientRequest struct {
	FirstName     string `json:"first_name" validate:"required,max=100"`
	MiddleName    string `json:"middle_name" validate:"omitempty,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	ContactNumber string `json:"contact_number" validate:"omitempty,max=32"`
	Email         string `json:"email" validate:"omitempty,email"`
	Address       string `json:"address" validate:"omitempty,max=255"`
	MeterNumber   string `json:"meter_number" validate:"omitempty,max=64"`
	// InitialMeterReading is the reading of the meter at installation
	InitialMeterReading int64 `json:"initial_meter_reading" validate:"gte=0"`
}

func (r *RegisterClientRequest) Validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.MiddleName = strings.TrimSpace(r.MiddleName)
	r.LastName = strings.TrimSpace(r.LastName)
	return validator.ValidateRequest(r)
}

// ToClient builds the client with the issued account number
func (r *RegisterClientRequest) ToClient(ctx context.Context, accountNumber string, now time.Time) *client.Client {
	return &client.Client{
		ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		AccountNumber:       accountNumber,
		FirstName:           r.FirstName,
		MiddleName:          r.MiddleName,
		LastName:            r.LastName,
		ContactNumber:       r.ContactNumber,
		Email:               r.Email,
		Address:             r.Address,
		MeterNumber:         r.MeterNumber,
		InitialMeterReading: r.InitialMeterReading,
		BaseModel: types.BaseModel{
			Status:    types.StatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: types.GetUserID(ctx),
			UpdatedBy: types.GetUserID(ctx),
		},
	}
}

type ClientResponse struct {
	*client.Client
	FullName              string                 `json:"full_name"`
	ConnectionStatus      types.ConnectionStatus `json:"connection_status,omitempty"`
	ConnectionStatusLabel string                 `json:"connection_status_label,omitempty"`
}

// ListClientsResponse represents the response for listing clients
type ListClientsResponse = types.ListResponse[*ClientResponse]

func NewClientResponse(c *client.Client, status *connection.StatusRecord) *ClientResponse {
	resp := &ClientResponse{
		Client:   c,
		FullName: c.FullName(),
	}
	if status != nil {
		resp.ConnectionStatus = status.ConnectionStatus
		resp.ConnectionStatusLabel = status.ConnectionStatus.Label()
	}
	return resp
}
