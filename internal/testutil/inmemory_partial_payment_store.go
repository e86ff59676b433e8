package testutil

import (
	"context"

	"github.com/watercoop/waterbill/internal/domain/bill"
	ierr "github.com/watercoop/waterbill/internal/errors"
)

// InMemoryPartialPaymentStore implements bill.PartialPaymentRepository
type InMemoryPartialPaymentStore struct {
	*InMemoryStore[*bill.PartialPayment]
}

var _ bill.PartialPaymentRepository = (*InMemoryPartialPaymentStore)(nil)

func NewInMemoryPartialPaymentStore() *InMemoryPartialPaymentStore {
	return &InMemoryPartialPaymentStore{
		InMemoryStore: NewInMemoryStore[*bill.PartialPayment](),
	}
}

func copyPartialPayment(p *bill.PartialPayment) *bill.PartialPayment {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (s *InMemoryPartialPaymentStore) Create(ctx context.Context, p *bill.PartialPayment) error {
	return s.InMemoryStore.CreateIf(ctx, p.ID, copyPartialPayment(p), func(existing *bill.PartialPayment) error {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return ierr.NewErrorf("payment with idempotency key %s already recorded", p.IdempotencyKey).
				WithHint("This payment was already recorded").
				Mark(ierr.ErrAlreadyExists)
		}
		return nil
	})
}

func (s *InMemoryPartialPaymentStore) ListByBill(ctx context.Context, billID string) ([]*bill.PartialPayment, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *bill.PartialPayment, _ interface{}) bool {
		return p.BillID == billID
	}, func(i, j *bill.PartialPayment) bool {
		if !i.PaymentDate.Equal(j.PaymentDate) {
			return i.PaymentDate.Before(j.PaymentDate)
		}
		return i.ID < j.ID
	})
	if err != nil {
		return nil, err
	}
	result := make([]*bill.PartialPayment, 0, len(items))
	for _, p := range items {
		result = append(result, copyPartialPayment(p))
	}
	return result, nil
}

func (s *InMemoryPartialPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*bill.PartialPayment, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, p *bill.PartialPayment, _ interface{}) bool {
		return p.IdempotencyKey == key
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewErrorf("no payment with idempotency key %s", key).
			Mark(ierr.ErrNotFound)
	}
	return copyPartialPayment(items[0]), nil
}
