package bill

import (
	"context"

	"github.com/watercoop/waterbill/internal/types"
)

// Repository defines the interface for bill persistence
type Repository interface {
	Create(ctx context.Context, bill *Bill) error
	Get(ctx context.Context, id string) (*Bill, error)
	// Update writes the bill only if the stored version still equals
	// expectedVersion, otherwise it fails with ierr.ErrStaleBillState
	Update(ctx context.Context, bill *Bill, expectedVersion int64) error
	List(ctx context.Context, filter *types.BillFilter) ([]*Bill, error)
	Count(ctx context.Context, filter *types.BillFilter) (int, error)
	// FindOpenBill returns the client's unpaid or underpaid bill, ierr.ErrNotFound when there is none
	FindOpenBill(ctx context.Context, clientID string) (*Bill, error)
	// FindLatestBill returns the client's most recent bill, ierr.ErrNotFound when there is none
	FindLatestBill(ctx context.Context, clientID string) (*Bill, error)
}

// PartialPaymentRepository defines the interface for installment persistence
type PartialPaymentRepository interface {
	// Create appends a payment. A reused idempotency key fails with ierr.ErrAlreadyExists.
	Create(ctx context.Context, payment *PartialPayment) error
	ListByBill(ctx context.Context, billID string) ([]*PartialPayment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*PartialPayment, error)
}
