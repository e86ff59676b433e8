package client

import (
	"context"

	"github.com/watercoop/waterbill/internal/types"
)

// Repository defines the interface for client data access
type Repository interface {
	// Create persists a new client. A collision on the account number is
	// returned marked with ierr.ErrDuplicateAccountNumber.
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, id string) (*Client, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*Client, error)
	List(ctx context.Context, filter *types.ClientFilter) ([]*Client, error)
	Count(ctx context.Context, filter *types.ClientFilter) (int, error)
	// FindLastIssuedAccountNumber returns the account number of the most
	// recently created client, or "" when no client exists yet
	FindLastIssuedAccountNumber(ctx context.Context) (string, error)
}
