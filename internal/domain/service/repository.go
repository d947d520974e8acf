package service

import (
	"context"
	"time"
)

// Repository provides access to persisted services, their state-change log
// and the service/invoice renewal join.
type Repository interface {
	// CreateWithCode inserts the service and allocates its sequential code
	// in the same statement, mirroring the invoice number allocator
	CreateWithCode(ctx context.Context, svc *Service, format CodeFormat) error
	Get(ctx context.Context, id string) (*Service, error)
	Update(ctx context.Context, svc *Service) error
	Delete(ctx context.Context, id string) error

	ListByClient(ctx context.Context, clientID string) ([]*Service, error)

	// ListChildren returns the direct children (addons) of a service
	ListChildren(ctx context.Context, parentServiceID string) ([]*Service, error)

	// ListScheduledForCancellation returns services whose future-dated
	// cancellation has arrived by asOf but whose status has not yet flipped
	ListScheduledForCancellation(ctx context.Context, asOf time.Time) ([]*Service, error)

	// ListRenewable returns pending and active services whose date_renews,
	// less the given look-ahead, has arrived by asOf, across companies
	ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*Service, error)

	AddStateChange(ctx context.Context, change *StateChange) error
	ListStateChanges(ctx context.Context, serviceID string) ([]*StateChange, error)

	// AddServiceInvoice records the renewal join; at most one row exists per
	// (service, invoice) pair
	AddServiceInvoice(ctx context.Context, link *ServiceInvoice) error
	GetServiceInvoice(ctx context.Context, serviceID, invoiceID string) (*ServiceInvoice, error)
	ListServiceInvoices(ctx context.Context, serviceID string) ([]*ServiceInvoice, error)
	UpdateServiceInvoice(ctx context.Context, link *ServiceInvoice) error
}
