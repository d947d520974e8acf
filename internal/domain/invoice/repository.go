package invoice

import (
	"context"
	"time"
)

// Repository provides access to persisted invoices, their line items, line
// taxes and delivery records.
type Repository interface {
	// CreateWithNumber inserts the invoice together with its lines, taxes
	// and deliveries, allocating the next sequential number for the given
	// format inside the same transaction. Implementations must surface
	// serialization conflicts as ierr.ErrTransactionConflict so the caller's
	// bounded retry can re-execute the whole operation.
	CreateWithNumber(ctx context.Context, inv *Invoice, format NumberFormat) error

	Get(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error

	// Delete removes an invoice row outright; callers enforce the
	// draft-only rule before reaching this
	Delete(ctx context.Context, id string) error

	ListByClient(ctx context.Context, clientID string) ([]*Invoice, error)

	// ListOpenByService returns open (active or proforma, not closed)
	// invoices that contain at least one line bound to the service
	ListOpenByService(ctx context.Context, serviceID string) ([]*Invoice, error)

	// ListOpenByClient returns the client's open invoices ordered by
	// date_due ascending, used for the previous-due carry forward
	ListOpenByClient(ctx context.Context, clientID string) ([]*Invoice, error)

	// Renumber allocates a fresh number under the given format for an
	// existing invoice, used when a proforma is promoted to active
	Renumber(ctx context.Context, id string, format NumberFormat) error

	AddLineItems(ctx context.Context, invoiceID string, items []*LineItem) error
	RemoveLineItems(ctx context.Context, invoiceID string, itemIDs []string) error

	AddDeliveries(ctx context.Context, invoiceID string, deliveries []*Delivery) error
	MarkDeliverySent(ctx context.Context, deliveryID string, at time.Time) error

	// CountByRecurring returns how many invoices a recurring template has
	// produced, derived from the created-invoices join
	CountByRecurring(ctx context.Context, recurringInvoiceID string) (int, error)
}
