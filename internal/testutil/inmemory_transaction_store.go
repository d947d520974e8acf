package testutil

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/transaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryTransactionStore implements transaction.Repository
type InMemoryTransactionStore struct {
	*InMemoryStore[*transaction.Transaction]
}

// NewInMemoryTransactionStore creates a new in-memory transaction store
func NewInMemoryTransactionStore() *InMemoryTransactionStore {
	return &InMemoryTransactionStore{
		InMemoryStore: NewInMemoryStore[*transaction.Transaction](),
	}
}

func copyTransaction(txn *transaction.Transaction) *transaction.Transaction {
	if txn == nil {
		return nil
	}
	out := *txn
	out.Applications = make([]*transaction.Application, len(txn.Applications))
	for i, app := range txn.Applications {
		appCopy := *app
		out.Applications[i] = &appCopy
	}
	return &out
}

func (s *InMemoryTransactionStore) Create(ctx context.Context, txn *transaction.Transaction) error {
	return s.InMemoryStore.Create(ctx, txn.ID, copyTransaction(txn))
}

func (s *InMemoryTransactionStore) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	txn, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("transaction not found").
			WithHintf("transaction %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyTransaction(txn), nil
}

func (s *InMemoryTransactionStore) Update(ctx context.Context, txn *transaction.Transaction) error {
	existing, err := s.InMemoryStore.Get(ctx, txn.ID)
	if err != nil {
		return ierr.NewError("transaction not found").
			Mark(ierr.ErrNotFound)
	}

	next := copyTransaction(txn)
	if txn.Applications == nil {
		next.Applications = existing.Applications
	}
	return s.InMemoryStore.Update(ctx, txn.ID, next)
}

func (s *InMemoryTransactionStore) ListByClient(ctx context.Context, clientID string) ([]*transaction.Transaction, error) {
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, txn *transaction.Transaction, _ interface{}) bool {
		return txn.ClientID == clientID && txn.Status != types.StatusDeleted
	}, func(a, b *transaction.Transaction) bool {
		return a.DateAdded.Before(b.DateAdded)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(txn *transaction.Transaction, _ int) *transaction.Transaction {
		return copyTransaction(txn)
	}), nil
}

func (s *InMemoryTransactionStore) ListApplicationsByInvoice(ctx context.Context, invoiceID string) ([]*transaction.Application, error) {
	txns, err := s.InMemoryStore.List(ctx, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	// keep the owning transaction's date around for ordering
	type dated struct {
		app  *transaction.Application
		date time.Time
	}

	var found []dated
	for _, txn := range txns {
		for _, app := range txn.Applications {
			if app.InvoiceID == invoiceID {
				appCopy := *app
				found = append(found, dated{app: &appCopy, date: txn.DateAdded})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].date.Before(found[j].date)
	})

	return lo.Map(found, func(d dated, _ int) *transaction.Application {
		return d.app
	}), nil
}

func (s *InMemoryTransactionStore) Apply(ctx context.Context, transactionID, invoiceID string, amount decimal.Decimal) error {
	txn, err := s.InMemoryStore.Get(ctx, transactionID)
	if err != nil {
		return ierr.NewError("transaction not found").
			Mark(ierr.ErrNotFound)
	}

	next := copyTransaction(txn)
	for _, app := range next.Applications {
		if app.InvoiceID == invoiceID {
			app.Amount = app.Amount.Add(amount)
			return s.InMemoryStore.Update(ctx, transactionID, next)
		}
	}

	next.Applications = append(next.Applications, &transaction.Application{
		TransactionID: transactionID,
		InvoiceID:     invoiceID,
		Amount:        amount,
		DateApplied:   time.Now().UTC(),
	})
	return s.InMemoryStore.Update(ctx, transactionID, next)
}

func (s *InMemoryTransactionStore) Unapply(ctx context.Context, transactionID, invoiceID string) error {
	txn, err := s.InMemoryStore.Get(ctx, transactionID)
	if err != nil {
		return ierr.NewError("transaction not found").
			Mark(ierr.ErrNotFound)
	}

	next := copyTransaction(txn)
	next.Applications = lo.Filter(next.Applications, func(app *transaction.Application, _ int) bool {
		return app.InvoiceID != invoiceID
	})
	return s.InMemoryStore.Update(ctx, transactionID, next)
}
