package testutil

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/stackbill/stackbill/internal/domain/recurring"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryRecurringStore implements recurring.Repository
type InMemoryRecurringStore struct {
	*InMemoryStore[*recurring.RecurringInvoice]
}

// NewInMemoryRecurringStore creates a new in-memory recurring invoice store
func NewInMemoryRecurringStore() *InMemoryRecurringStore {
	return &InMemoryRecurringStore{
		InMemoryStore: NewInMemoryStore[*recurring.RecurringInvoice](),
	}
}

func copyRecurring(ri *recurring.RecurringInvoice) *recurring.RecurringInvoice {
	if ri == nil {
		return nil
	}
	out := *ri
	out.LineItems = make([]*recurring.LineItem, len(ri.LineItems))
	for i, li := range ri.LineItems {
		liCopy := *li
		out.LineItems[i] = &liCopy
	}
	return &out
}

func (s *InMemoryRecurringStore) Create(ctx context.Context, ri *recurring.RecurringInvoice) error {
	for _, li := range ri.LineItems {
		li.RecurringInvoiceID = ri.ID
	}
	return s.InMemoryStore.Create(ctx, ri.ID, copyRecurring(ri))
}

func (s *InMemoryRecurringStore) Get(ctx context.Context, id string) (*recurring.RecurringInvoice, error) {
	ri, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("recurring invoice not found").
			WithHintf("recurring invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyRecurring(ri), nil
}

func (s *InMemoryRecurringStore) Update(ctx context.Context, ri *recurring.RecurringInvoice) error {
	existing, err := s.InMemoryStore.Get(ctx, ri.ID)
	if err != nil {
		return ierr.NewError("recurring invoice not found").
			Mark(ierr.ErrNotFound)
	}

	next := copyRecurring(ri)
	if ri.LineItems == nil {
		next.LineItems = existing.LineItems
	}
	return s.InMemoryStore.Update(ctx, ri.ID, next)
}

func (s *InMemoryRecurringStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryRecurringStore) ListByClient(ctx context.Context, clientID string) ([]*recurring.RecurringInvoice, error) {
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, ri *recurring.RecurringInvoice, _ interface{}) bool {
		return ri.ClientID == clientID && ri.Status != types.StatusDeleted
	}, func(a, b *recurring.RecurringInvoice) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(ri *recurring.RecurringInvoice, _ int) *recurring.RecurringInvoice {
		return copyRecurring(ri)
	}), nil
}

func (s *InMemoryRecurringStore) ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*recurring.RecurringInvoice, error) {
	cutoff := asOf.AddDate(0, 0, aheadDays)
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, ri *recurring.RecurringInvoice, _ interface{}) bool {
		return ri.Status == types.StatusActive && !ri.DateRenews.After(cutoff)
	}, func(a, b *recurring.RecurringInvoice) bool {
		return a.DateRenews.Before(b.DateRenews)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(ri *recurring.RecurringInvoice, _ int) *recurring.RecurringInvoice {
		return copyRecurring(ri)
	}), nil
}
