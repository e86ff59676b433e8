package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/watercoop/waterbill/internal/domain/client"
	ierr "github.com/watercoop/waterbill/internal/errors"
	"github.com/watercoop/waterbill/internal/types"
)

// InMemoryClientStore implements client.Repository
type InMemoryClientStore struct {
	*InMemoryStore[*client.Client]

	mu sync.Mutex
	// pendingCollisions makes the next N creates fail as duplicates
	pendingCollisions int
}

var _ client.Repository = (*InMemoryClientStore)(nil)

// NewInMemoryClientStore creates a new in-memory client store
func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{
		InMemoryStore: NewInMemoryStore[*client.Client](),
	}
}

func copyClient(c *client.Client) *client.Client {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// SimulateCollisions makes the next n creates fail with a duplicate account number,
// as if another registration committed the same number first
func (s *InMemoryClientStore) SimulateCollisions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCollisions = n
}

func (s *InMemoryClientStore) takeCollision() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingCollisions > 0 {
		s.pendingCollisions--
		return true
	}
	return false
}

func duplicateAccountNumber(accountNumber string) error {
	return ierr.NewErrorf("account number %s is already issued", accountNumber).
		WithHintf("Account number %s is already issued", accountNumber).
		Mark(ierr.ErrDuplicateAccountNumber)
}

func (s *InMemoryClientStore) Create(ctx context.Context, c *client.Client) error {
	if s.takeCollision() {
		return duplicateAccountNumber(c.AccountNumber)
	}
	return s.InMemoryStore.CreateIf(ctx, c.ID, copyClient(c), func(existing *client.Client) error {
		if existing.AccountNumber == c.AccountNumber {
			return duplicateAccountNumber(c.AccountNumber)
		}
		return nil
	})
}

func (s *InMemoryClientStore) Get(ctx context.Context, id string) (*client.Client, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Client %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyClient(c), nil
}

func (s *InMemoryClientStore) GetByAccountNumber(ctx context.Context, accountNumber string) (*client.Client, error) {
	items, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, c *client.Client, _ interface{}) bool {
		return c.AccountNumber == accountNumber
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ierr.NewErrorf("client with account number %s not found", accountNumber).
			WithHintf("No client has account number %s", accountNumber).
			Mark(ierr.ErrNotFound)
	}
	return copyClient(items[0]), nil
}

func (s *InMemoryClientStore) List(ctx context.Context, filter *types.ClientFilter) ([]*client.Client, error) {
	if filter == nil {
		filter = types.NewClientFilter()
	}
	items, err := s.InMemoryStore.List(ctx, filter, clientFilterFn, clientSortFn(filter.GetOrder()))
	if err != nil {
		return nil, err
	}
	result := make([]*client.Client, 0, len(items))
	for _, c := range items {
		result = append(result, copyClient(c))
	}
	return result, nil
}

func (s *InMemoryClientStore) Count(ctx context.Context, filter *types.ClientFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, clientFilterFn)
}

func (s *InMemoryClientStore) FindLastIssuedAccountNumber(ctx context.Context) (string, error) {
	items, err := s.InMemoryStore.List(ctx, nil, nil, clientSortFn(types.OrderDesc))
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[0].AccountNumber, nil
}

func clientFilterFn(_ context.Context, c *client.Client, filter interface{}) bool {
	f, ok := filter.(*types.ClientFilter)
	if !ok || f == nil {
		return true
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{c.AccountNumber, c.FirstName, c.MiddleName, c.LastName} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func clientSortFn(order string) SortFunc[*client.Client] {
	return func(i, j *client.Client) bool {
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
