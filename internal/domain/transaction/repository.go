package transaction

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository provides access to transactions and their invoice applications
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	Update(ctx context.Context, txn *Transaction) error

	ListByClient(ctx context.Context, clientID string) ([]*Transaction, error)

	// ListApplicationsByInvoice returns the applications against an invoice
	// ordered by the original transaction's date ascending, the order
	// payment re-application walks in
	ListApplicationsByInvoice(ctx context.Context, invoiceID string) ([]*Application, error)

	// Apply records a portion of a transaction against an invoice
	Apply(ctx context.Context, transactionID, invoiceID string, amount decimal.Decimal) error

	// Unapply removes a transaction's application from an invoice, returning
	// the amount to the transaction's available balance
	Unapply(ctx context.Context, transactionID, invoiceID string) error
}
