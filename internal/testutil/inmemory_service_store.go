package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/stackbill/stackbill/internal/domain/service"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryServiceStore implements service.Repository
type InMemoryServiceStore struct {
	*InMemoryStore[*service.Service]

	stateChanges    *InMemoryStore[*service.StateChange]
	serviceInvoices *InMemoryStore[*service.ServiceInvoice]

	// conflictsRemaining makes the next N CreateWithCode calls fail with
	// a transaction conflict, for exercising caller retry loops
	conflictsRemaining int
}

// InjectConflicts makes the next n create calls fail with a serialization
// conflict before any state changes
func (s *InMemoryServiceStore) InjectConflicts(n int) {
	s.conflictsRemaining = n
}

// NewInMemoryServiceStore creates a new in-memory service store
func NewInMemoryServiceStore() *InMemoryServiceStore {
	return &InMemoryServiceStore{
		InMemoryStore:   NewInMemoryStore[*service.Service](),
		stateChanges:    NewInMemoryStore[*service.StateChange](),
		serviceInvoices: NewInMemoryStore[*service.ServiceInvoice](),
	}
}

func copyService(svc *service.Service) *service.Service {
	if svc == nil {
		return nil
	}
	out := *svc
	return &out
}

func (s *InMemoryServiceStore) CreateWithCode(ctx context.Context, svc *service.Service, format service.CodeFormat) error {
	if s.conflictsRemaining > 0 {
		s.conflictsRemaining--
		return ierr.NewError("simulated serialization conflict").
			Mark(ierr.ErrTransactionConflict)
	}

	resolved := types.ResolveNumberFormat(format.Format, svc.DateAdded)
	svc.CodeFormat = resolved
	svc.Code = s.nextCode(ctx, resolved, format)

	return s.InMemoryStore.Create(ctx, svc.ID, copyService(svc))
}

func (s *InMemoryServiceStore) nextCode(ctx context.Context, resolvedFormat string, format service.CodeFormat) int64 {
	var max int64
	all, _ := s.InMemoryStore.List(ctx, nil, nil, nil)
	for _, existing := range all {
		if existing.CompanyID == types.GetCompanyID(ctx) &&
			existing.CodeFormat == resolvedFormat &&
			existing.Code > max {
			max = existing.Code
		}
	}
	if format.Start > max {
		max = format.Start
	}
	return max + format.Increment
}

func (s *InMemoryServiceStore) Get(ctx context.Context, id string) (*service.Service, error) {
	svc, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(service.ErrServiceNotFound).
			WithHintf("service %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyService(svc), nil
}

func (s *InMemoryServiceStore) Update(ctx context.Context, svc *service.Service) error {
	if err := s.InMemoryStore.Update(ctx, svc.ID, copyService(svc)); err != nil {
		return ierr.WithError(service.ErrServiceNotFound).
			WithHintf("service %s not found", svc.ID).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *InMemoryServiceStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryServiceStore) ListByClient(ctx context.Context, clientID string) ([]*service.Service, error) {
	return s.list(ctx, func(svc *service.Service) bool {
		return svc.ClientID == clientID
	})
}

func (s *InMemoryServiceStore) ListChildren(ctx context.Context, parentServiceID string) ([]*service.Service, error) {
	return s.list(ctx, func(svc *service.Service) bool {
		return svc.ParentServiceID != nil && *svc.ParentServiceID == parentServiceID
	})
}

func (s *InMemoryServiceStore) ListScheduledForCancellation(ctx context.Context, asOf time.Time) ([]*service.Service, error) {
	return s.list(ctx, func(svc *service.Service) bool {
		return (svc.ServiceStatus == types.ServiceStatusActive ||
			svc.ServiceStatus == types.ServiceStatusSuspended) &&
			svc.DateCanceled != nil && !svc.DateCanceled.After(asOf)
	})
}

func (s *InMemoryServiceStore) ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*service.Service, error) {
	cutoff := asOf.AddDate(0, 0, aheadDays)
	return s.list(ctx, func(svc *service.Service) bool {
		return (svc.ServiceStatus == types.ServiceStatusPending ||
			svc.ServiceStatus == types.ServiceStatusActive) &&
			!svc.DateRenews.After(cutoff)
	})
}

func (s *InMemoryServiceStore) list(ctx context.Context, match func(*service.Service) bool) ([]*service.Service, error) {
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, svc *service.Service, _ interface{}) bool {
		return svc.Status != types.StatusDeleted && match(svc)
	}, func(a, b *service.Service) bool {
		return a.DateAdded.Before(b.DateAdded)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(svc *service.Service, _ int) *service.Service {
		return copyService(svc)
	}), nil
}

func (s *InMemoryServiceStore) AddStateChange(ctx context.Context, change *service.StateChange) error {
	c := *change
	return s.stateChanges.Create(ctx, change.ID, &c)
}

func (s *InMemoryServiceStore) ListStateChanges(ctx context.Context, serviceID string) ([]*service.StateChange, error) {
	return s.stateChanges.List(ctx, nil, func(ctx context.Context, c *service.StateChange, _ interface{}) bool {
		return c.ServiceID == serviceID
	}, func(a, b *service.StateChange) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func serviceInvoiceKey(serviceID, invoiceID string) string {
	return fmt.Sprintf("%s:%s", serviceID, invoiceID)
}

func (s *InMemoryServiceStore) AddServiceInvoice(ctx context.Context, link *service.ServiceInvoice) error {
	l := *link
	err := s.serviceInvoices.Create(ctx, serviceInvoiceKey(link.ServiceID, link.InvoiceID), &l)
	if err != nil {
		// the pair already exists, matching ON CONFLICT DO NOTHING
		return nil
	}
	return nil
}

func (s *InMemoryServiceStore) GetServiceInvoice(ctx context.Context, serviceID, invoiceID string) (*service.ServiceInvoice, error) {
	link, err := s.serviceInvoices.Get(ctx, serviceInvoiceKey(serviceID, invoiceID))
	if err != nil {
		return nil, ierr.NewError("service invoice link not found").
			Mark(ierr.ErrNotFound)
	}
	l := *link
	return &l, nil
}

func (s *InMemoryServiceStore) ListServiceInvoices(ctx context.Context, serviceID string) ([]*service.ServiceInvoice, error) {
	links, err := s.serviceInvoices.List(ctx, nil, func(ctx context.Context, l *service.ServiceInvoice, _ interface{}) bool {
		return l.ServiceID == serviceID
	}, nil)
	if err != nil {
		return nil, err
	}
	return lo.Map(links, func(l *service.ServiceInvoice, _ int) *service.ServiceInvoice {
		c := *l
		return &c
	}), nil
}

func (s *InMemoryServiceStore) UpdateServiceInvoice(ctx context.Context, link *service.ServiceInvoice) error {
	l := *link
	return s.serviceInvoices.Update(ctx, serviceInvoiceKey(link.ServiceID, link.InvoiceID), &l)
}

// Clear wipes services together with their side tables
func (s *InMemoryServiceStore) Clear() {
	s.InMemoryStore.Clear()
	s.stateChanges.Clear()
	s.serviceInvoices.Clear()
	s.conflictsRemaining = 0
}
