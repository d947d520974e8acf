package recurring

import (
	"context"
	"time"
)

// Repository provides access to recurring invoice templates. Templates are
// destroyed independently of any invoices they already produced; there is no
// cascade.
type Repository interface {
	Create(ctx context.Context, r *RecurringInvoice) error
	Get(ctx context.Context, id string) (*RecurringInvoice, error)
	Update(ctx context.Context, r *RecurringInvoice) error
	Delete(ctx context.Context, id string) error

	ListByClient(ctx context.Context, clientID string) ([]*RecurringInvoice, error)

	// ListRenewable returns templates whose date_renews, less the given
	// look-ahead in days, is on or before asOf
	ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*RecurringInvoice, error)
}
