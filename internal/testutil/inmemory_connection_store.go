package testutil

import (
	"context"

	"github.com/watercoop/waterbill/internal/domain/connection"
	ierr "github.com/watercoop/waterbill/internal/errors"
)

// InMemoryConnectionStore implements connection.Repository
type InMemoryConnectionStore struct {
	store *InMemoryStore[*connection.StatusRecord]
}

var _ connection.Repository = (*InMemoryConnectionStore)(nil)

func NewInMemoryConnectionStore() *InMemoryConnectionStore {
	return &InMemoryConnectionStore{
		store: NewInMemoryStore[*connection.StatusRecord](),
	}
}

func copyStatusRecord(r *connection.StatusRecord) *connection.StatusRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.BillID != nil {
		id := *r.BillID
		cp.BillID = &id
	}
	return &cp
}

func (s *InMemoryConnectionStore) Append(ctx context.Context, r *connection.StatusRecord) error {
	return s.store.Create(ctx, r.ID, copyStatusRecord(r))
}

func (s *InMemoryConnectionStore) history(ctx context.Context, clientID string) ([]*connection.StatusRecord, error) {
	return s.store.List(ctx, nil, func(_ context.Context, r *connection.StatusRecord, _ interface{}) bool {
		return r.ClientID == clientID
	}, connectionSortFn)
}

func (s *InMemoryConnectionStore) GetCurrent(ctx context.Context, clientID string) (*connection.StatusRecord, error) {
	items, err := s.history(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewErrorf("no connection status for client %s", clientID).
			WithHintf("Client %s has no connection status yet", clientID).
			Mark(ierr.ErrNotFound)
	}
	return copyStatusRecord(items[len(items)-1]), nil
}

func (s *InMemoryConnectionStore) ListByClient(ctx context.Context, clientID string) ([]*connection.StatusRecord, error) {
	items, err := s.history(ctx, clientID)
	if err != nil {
		return nil, err
	}
	result := make([]*connection.StatusRecord, 0, len(items))
	for _, r := range items {
		result = append(result, copyStatusRecord(r))
	}
	return result, nil
}

func (s *InMemoryConnectionStore) Clear() {
	s.store.Clear()
}

// connectionSortFn orders the history oldest first
func connectionSortFn(i, j *connection.StatusRecord) bool {
	if !i.EffectiveAt.Equal(j.EffectiveAt) {
		return i.EffectiveAt.Before(j.EffectiveAt)
	}
	return i.ID < j.ID
}
