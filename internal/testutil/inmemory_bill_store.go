package testutil

import (
	"context"

	"github.com/samber/lo"
	"github.com/watercoop/waterbill/internal/domain/bill"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// InMemoryBillStore implements bill.Repository, including the version guard
// and the one open bill per client rule the database enforces
type InMemoryBillStore struct {
	*InMemoryStore[*bill.Bill]
}

var _ bill.Repository = (*InMemoryBillStore)(nil)

// NewInMemoryBillStore creates a new in-memory bill store
func NewInMemoryBillStore() *InMemoryBillStore {
	return &InMemoryBillStore{
		InMemoryStore: NewInMemoryStore[*bill.Bill](),
	}
}

func copyBill(b *bill.Bill) *bill.Bill {
	if b == nil {
		return nil
	}
	return b.Copy()
}

func (s *InMemoryBillStore) Create(ctx context.Context, b *bill.Bill) error {
	return s.InMemoryStore.CreateIf(ctx, b.ID, copyBill(b), func(existing *bill.Bill) error {
		if b.IsOpen() && existing.ClientID == b.ClientID && existing.IsOpen() {
			return ierr.NewErrorf("client %s already has open bill %s", b.ClientID, existing.ID).
				WithHint("This client still has an unpaid bill. Settle it before creating a new one").
				Mark(ierr.ErrOpenBillExists)
		}
		return nil
	})
}

func (s *InMemoryBillStore) Get(ctx context.Context, id string) (*bill.Bill, error) {
	b, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Bill %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyBill(b), nil
}

func (s *InMemoryBillStore) Update(ctx context.Context, b *bill.Bill, expectedVersion int64) error {
	return s.InMemoryStore.CompareAndUpdate(ctx, b.ID, copyBill(b), func(current *bill.Bill) error {
		if current.Version != expectedVersion {
			return ierr.NewErrorf("bill %s is no longer at version %d", b.ID, expectedVersion).
				WithHint("The bill changed since it was loaded. Reload it and try again").
				Mark(ierr.ErrStaleBillState)
		}
		return nil
	})
}

func (s *InMemoryBillStore) List(ctx context.Context, filter *types.BillFilter) ([]*bill.Bill, error) {
	if filter == nil {
		filter = types.NewBillFilter()
	}
	items, err := s.InMemoryStore.List(ctx, filter, billFilterFn, billSortFn(filter.GetOrder()))
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(b *bill.Bill, _ int) *bill.Bill {
		return copyBill(b)
	}), nil
}

func (s *InMemoryBillStore) Count(ctx context.Context, filter *types.BillFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, billFilterFn)
}

func (s *InMemoryBillStore) latest(ctx context.Context, clientID string, openOnly bool) (*bill.Bill, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, b *bill.Bill, _ interface{}) bool {
		return b.ClientID == clientID && (!openOnly || b.IsOpen())
	}, billSortFn(types.OrderDesc))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewErrorf("no matching bill for client %s", clientID).
			WithHint("No matching bill for this client").
			Mark(ierr.ErrNotFound)
	}
	return copyBill(items[0]), nil
}

func (s *InMemoryBillStore) FindOpenBill(ctx context.Context, clientID string) (*bill.Bill, error) {
	return s.latest(ctx, clientID, true)
}

func (s *InMemoryBillStore) FindLatestBill(ctx context.Context, clientID string) (*bill.Bill, error) {
	return s.latest(ctx, clientID, false)
}

func billFilterFn(_ context.Context, b *bill.Bill, filter interface{}) bool {
	f, ok := filter.(*types.BillFilter)
	if !ok || f == nil {
		return true
	}
	if f.ClientID != "" && b.ClientID != f.ClientID {
		return false
	}
	if len(f.PaymentStatuses) > 0 && !lo.Contains(f.PaymentStatuses, b.PaymentStatus) {
		return false
	}
	return true
}

func billSortFn(order string) SortFunc[*bill.Bill] {
	return func(i, j *bill.Bill) bool {
		if !i.CreatedAt.Equal(j.CreatedAt) {
			if order == types.OrderAsc {
				return i.CreatedAt.Before(j.CreatedAt)
			}
			return i.CreatedAt.After(j.CreatedAt)
		}
		if order == types.OrderAsc {
			return i.ID < j.ID
		}
		return i.ID > j.ID
	}
}
