package testutil

import (
	"context"
	"sync/atomic"

	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/logger"
)

var _ database.IClient = (*MockPostgresClient)(nil) // Ensure MockPostgresClient implements IClient

type txMarker struct{}

// MockPostgresClient runs transactional callbacks without a database.
// In-memory stores apply writes immediately, so nothing is rolled back.
type MockPostgresClient struct {
	logger *logger.Logger
	txs    atomic.Int64
}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{
		logger: logger,
	}
}

// WithTx executes the given function within a transaction
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	// If we're already in a transaction, reuse it
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}

	c.txs.Add(1)
	return fn(context.WithValue(ctx, txMarker{}, true))
}

// TxCount returns how many top level transactions were started
func (c *MockPostgresClient) TxCount() int64 {
	return c.txs.Load()
}
