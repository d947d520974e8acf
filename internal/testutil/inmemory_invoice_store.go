package testutil

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/stackbill/stackbill/internal/domain/invoice"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository with the same
// numbering behavior as the postgres allocator: one sequence per company
// and resolved format, next value GREATEST(max, start) + increment.
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]

	// conflictsRemaining makes the next N CreateWithNumber calls fail with
	// a transaction conflict, for exercising caller retry loops
	conflictsRemaining int
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

// InjectConflicts makes the next n create calls fail with a serialization
// conflict before any state changes
func (s *InMemoryInvoiceStore) InjectConflicts(n int) {
	s.conflictsRemaining = n
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	if inv == nil {
		return nil
	}

	out := *inv

	out.LineItems = make([]*invoice.LineItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		liCopy := *li
		liCopy.Taxes = make([]*invoice.LineTax, len(li.Taxes))
		for j, tax := range li.Taxes {
			taxCopy := *tax
			liCopy.Taxes[j] = &taxCopy
		}
		out.LineItems[i] = &liCopy
	}

	out.Deliveries = make([]*invoice.Delivery, len(inv.Deliveries))
	for i, d := range inv.Deliveries {
		dCopy := *d
		out.Deliveries[i] = &dCopy
	}

	if inv.Metadata != nil {
		out.Metadata = make(types.Metadata, len(inv.Metadata))
		for k, v := range inv.Metadata {
			out.Metadata[k] = v
		}
	}

	return &out
}

func (s *InMemoryInvoiceStore) CreateWithNumber(ctx context.Context, inv *invoice.Invoice, format invoice.NumberFormat) error {
	if s.conflictsRemaining > 0 {
		s.conflictsRemaining--
		return ierr.NewError("simulated serialization conflict").
			Mark(ierr.ErrTransactionConflict)
	}

	resolved := invoice.ResolveFormat(format.Format, inv.DateBilled)
	inv.NumberFormat = resolved
	inv.Number = s.nextNumber(ctx, resolved, format)

	for _, li := range inv.LineItems {
		li.InvoiceID = inv.ID
	}
	for _, d := range inv.Deliveries {
		d.InvoiceID = inv.ID
	}

	return s.InMemoryStore.Create(ctx, inv.ID, copyInvoice(inv))
}

func (s *InMemoryInvoiceStore) nextNumber(ctx context.Context, resolvedFormat string, format invoice.NumberFormat) int64 {
	var max int64
	all, _ := s.InMemoryStore.List(ctx, nil, nil, nil)
	for _, existing := range all {
		if existing.CompanyID == types.GetCompanyID(ctx) &&
			existing.NumberFormat == resolvedFormat &&
			existing.Number > max {
			max = existing.Number
		}
	}
	if format.Start > max {
		max = format.Start
	}
	return max + format.Increment
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(invoice.ErrInvoiceNotFound).
			WithHintf("invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyInvoice(inv), nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	existing, err := s.InMemoryStore.Get(ctx, inv.ID)
	if err != nil {
		return ierr.WithError(invoice.ErrInvoiceNotFound).
			WithHintf("invoice %s not found", inv.ID).
			Mark(ierr.ErrNotFound)
	}

	next := copyInvoice(inv)
	if inv.LineItems == nil {
		next.LineItems = existing.LineItems
	}
	if inv.Deliveries == nil {
		next.Deliveries = existing.Deliveries
	}
	return s.InMemoryStore.Update(ctx, inv.ID, next)
}

func (s *InMemoryInvoiceStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryInvoiceStore) ListByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	return s.list(ctx, func(inv *invoice.Invoice) bool {
		return inv.ClientID == clientID
	}, func(a, b *invoice.Invoice) bool {
		return a.DateBilled.Before(b.DateBilled)
	})
}

func (s *InMemoryInvoiceStore) ListOpenByService(ctx context.Context, serviceID string) ([]*invoice.Invoice, error) {
	return s.list(ctx, func(inv *invoice.Invoice) bool {
		return inv.InvoiceStatus.IsOpen() && !inv.IsClosed() &&
			len(inv.ServiceLineItems(serviceID)) > 0
	}, func(a, b *invoice.Invoice) bool {
		return a.DateDue.Before(b.DateDue)
	})
}

func (s *InMemoryInvoiceStore) ListOpenByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	return s.list(ctx, func(inv *invoice.Invoice) bool {
		return inv.ClientID == clientID && inv.InvoiceStatus.IsOpen() && !inv.IsClosed()
	}, func(a, b *invoice.Invoice) bool {
		return a.DateDue.Before(b.DateDue)
	})
}

func (s *InMemoryInvoiceStore) list(ctx context.Context, match func(*invoice.Invoice) bool, less func(a, b *invoice.Invoice) bool) ([]*invoice.Invoice, error) {
	companyID := types.GetCompanyID(ctx)
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.CompanyID == companyID && inv.Status != types.StatusDeleted && match(inv)
	}, less)
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(inv *invoice.Invoice, _ int) *invoice.Invoice {
		return copyInvoice(inv)
	}), nil
}

func (s *InMemoryInvoiceStore) Renumber(ctx context.Context, id string, format invoice.NumberFormat) error {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.WithError(invoice.ErrInvoiceNotFound).
			WithHintf("invoice %s not found", id).
			Mark(ierr.ErrNotFound)
	}

	resolved := invoice.ResolveFormat(format.Format, time.Now().UTC())
	next := copyInvoice(inv)
	next.Number = s.nextNumber(ctx, resolved, format)
	next.NumberFormat = resolved
	return s.InMemoryStore.Update(ctx, id, next)
}

func (s *InMemoryInvoiceStore) AddLineItems(ctx context.Context, invoiceID string, items []*invoice.LineItem) error {
	inv, err := s.InMemoryStore.Get(ctx, invoiceID)
	if err != nil {
		return ierr.WithError(invoice.ErrInvoiceNotFound).
			Mark(ierr.ErrNotFound)
	}

	next := copyInvoice(inv)
	for _, item := range items {
		item.InvoiceID = invoiceID
		itemCopy := *item
		replaced := false
		for i, existing := range next.LineItems {
			if existing.ID == item.ID {
				next.LineItems[i] = &itemCopy
				replaced = true
				break
			}
		}
		if !replaced {
			next.LineItems = append(next.LineItems, &itemCopy)
		}
	}
	return s.InMemoryStore.Update(ctx, invoiceID, next)
}

func (s *InMemoryInvoiceStore) RemoveLineItems(ctx context.Context, invoiceID string, itemIDs []string) error {
	inv, err := s.InMemoryStore.Get(ctx, invoiceID)
	if err != nil {
		return ierr.WithError(invoice.ErrInvoiceNotFound).
			Mark(ierr.ErrNotFound)
	}

	next := copyInvoice(inv)
	next.LineItems = lo.Filter(next.LineItems, func(li *invoice.LineItem, _ int) bool {
		return !lo.Contains(itemIDs, li.ID)
	})
	return s.InMemoryStore.Update(ctx, invoiceID, next)
}

func (s *InMemoryInvoiceStore) AddDeliveries(ctx context.Context, invoiceID string, deliveries []*invoice.Delivery) error {
	inv, err := s.InMemoryStore.Get(ctx, invoiceID)
	if err != nil {
		return ierr.WithError(invoice.ErrInvoiceNotFound).
			Mark(ierr.ErrNotFound)
	}

	next := copyInvoice(inv)
	for _, d := range deliveries {
		d.InvoiceID = invoiceID
		dCopy := *d
		next.Deliveries = append(next.Deliveries, &dCopy)
	}
	return s.InMemoryStore.Update(ctx, invoiceID, next)
}

func (s *InMemoryInvoiceStore) MarkDeliverySent(ctx context.Context, deliveryID string, at time.Time) error {
	all, _ := s.InMemoryStore.List(ctx, nil, nil, nil)
	for _, inv := range all {
		for _, d := range inv.Deliveries {
			if d.ID == deliveryID {
				d.DateSent = &at
				return nil
			}
		}
	}
	return ierr.NewError("delivery not found").Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) CountByRecurring(ctx context.Context, recurringInvoiceID string) (int, error) {
	return s.InMemoryStore.Count(ctx, nil, func(ctx context.Context, inv *invoice.Invoice, _ interface{}) bool {
		return inv.RecurringInvoiceID != nil && *inv.RecurringInvoiceID == recurringInvoiceID &&
			inv.Status != types.StatusDeleted
	})
}
