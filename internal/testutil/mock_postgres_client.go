package testutil

import (
	"context"

	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/postgres"
)

var _ postgres.IClient = (*MockPostgresClient)(nil)

// MockPostgresClient satisfies postgres.IClient against in-memory stores.
// WithTx runs the function directly; WithTxRetry keeps the real
// re-execution semantics so retry behavior is testable without a database.
type MockPostgresClient struct{}

// NewMockPostgresClient creates a new mock postgres client
func NewMockPostgresClient() postgres.IClient {
	return &MockPostgresClient{}
}

func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (c *MockPostgresClient) WithTxRetry(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !ierr.IsTransactionConflict(err) {
			return err
		}
	}
	return err
}

// Querier panics if reached: in-memory repositories never touch SQL
func (c *MockPostgresClient) Querier(ctx context.Context) postgres.Querier {
	panic("no querier in mock postgres client")
}
