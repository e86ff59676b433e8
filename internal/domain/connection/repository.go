package connection

import (
	"context"
)

// Repository defines the interface for the append-only status history
type Repository interface {
	Append(ctx context.Context, record *StatusRecord) error
	// GetCurrent returns the latest record of the client, ierr.ErrNotFound when the client has none
	GetCurrent(ctx context.Context, clientID string) (*StatusRecord, error)
	ListByClient(ctx context.Context, clientID string) ([]*StatusRecord, error)
}
