package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/catalog"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/proration"
	srv "github.com/stackbill/stackbill/internal/domain/service"
	"github.com/stackbill/stackbill/internal/domain/settings"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/provisioning"
	"github.com/stackbill/stackbill/internal/types"
)

// LifecycleService drives the service state machine and its invoice-coupled
// side effects: provisioning module calls, state-change logging, cancellation
// fees and the void-on-cancel invoice cleanup.
type LifecycleService interface {
	Create(ctx context.Context, params CreateServiceParams) (*srv.Service, error)
	Get(ctx context.Context, id string) (*srv.Service, error)

	// Activate provisions a pending or in-review service through its
	// package's module and flips it to active
	Activate(ctx context.Context, id string) (*srv.Service, error)

	Suspend(ctx context.Context, id, reason string) error
	Unsuspend(ctx context.Context, id string) error

	// AutoUnsuspendEligible reports whether the last suspension was recorded
	// without a staff actor, which is what qualifies it for automatic
	// unsuspension on payment
	AutoUnsuspendEligible(ctx context.Context, id string) (bool, error)

	Cancel(ctx context.Context, id string, params CancelServiceParams) error
	Uncancel(ctx context.Context, id string) error

	// Renew notifies the provisioning module of a paid renewal and advances
	// the service's renewal date. Not a status transition.
	Renew(ctx context.Context, serviceID, invoiceID string) error

	// RunScheduledCancellations finalizes every future-dated cancellation
	// whose date has arrived by now, across companies
	RunScheduledCancellations(ctx context.Context, now time.Time) error

	// InvoiceRenewals bills every service whose renewal falls inside the
	// look-ahead window and does not already have an unconsumed invoice
	// link, across companies
	InvoiceRenewals(ctx context.Context, asOf time.Time) error

	// Delete soft-deletes a service. Refused while the service still has
	// an active or suspended addon.
	Delete(ctx context.Context, id string) error
}

// CreateServiceParams carries everything LifecycleService.Create needs. The
// service starts in pending; Activate provisions it.
type CreateServiceParams struct {
	ClientID  string
	PackageID string
	PricingID string

	ParentServiceID *string

	Qty int

	OverridePrice    *decimal.Decimal
	OverrideCurrency *string

	CouponID *string

	// DateAdded defaults to now when zero
	DateAdded time.Time
}

// CancelServiceParams selects when a cancellation takes effect
type CancelServiceParams struct {
	Type   types.CancellationType
	Date   *time.Time
	Reason string
}

type lifecycleService struct {
	ServiceParams
	invoices InvoiceService
	pricing  PricingService
}

// NewLifecycleService creates a new service lifecycle service
func NewLifecycleService(params ServiceParams) LifecycleService {
	return &lifecycleService{
		ServiceParams: params,
		invoices:      NewInvoiceService(params),
		pricing:       NewPricingService(params),
	}
}

func (s *lifecycleService) Create(ctx context.Context, params CreateServiceParams) (*srv.Service, error) {
	if _, err := s.ClientRepo.Get(ctx, params.ClientID); err != nil {
		return nil, err
	}
	pkg, err := s.CatalogRepo.GetPackage(ctx, params.PackageID)
	if err != nil {
		return nil, err
	}
	pricing, err := s.CatalogRepo.GetPricing(ctx, params.PricingID)
	if err != nil {
		return nil, err
	}
	if pricing.PackageID != pkg.ID {
		return nil, ValidationErrorf("pricing_id", "pricing %s does not belong to package %s", pricing.ID, pkg.ID)
	}

	dateAdded := params.DateAdded
	if dateAdded.IsZero() {
		dateAdded = time.Now().UTC()
	}

	qty := params.Qty
	if qty == 0 {
		qty = 1
	}

	service := &srv.Service{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SERVICE),
		ClientID:         params.ClientID,
		PackageID:        pkg.ID,
		PricingID:        pricing.ID,
		ParentServiceID:  params.ParentServiceID,
		ServiceStatus:    types.ServiceStatusPending,
		Qty:              qty,
		OverridePrice:    params.OverridePrice,
		OverrideCurrency: params.OverrideCurrency,
		CouponID:         params.CouponID,
		DateAdded:        dateAdded,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}

	prorater := proration.Prorater{
		ProrataDay: pricing.ProrataDay,
		Term:       pricing.Term,
		Period:     pricing.Period,
	}
	if prorater.Enabled() {
		service.DateRenews, err = prorater.ProratedRenewDate(dateAdded)
	} else {
		service.DateRenews, err = types.NextRenewDate(dateAdded, pricing.Term, pricing.Period)
	}
	if err != nil {
		return nil, err
	}

	if params.ParentServiceID != nil {
		if err := s.syncAddonRenewal(ctx, service, pricing, prorater.Enabled()); err != nil {
			return nil, err
		}
	}

	if err := service.Validate(); err != nil {
		return nil, err
	}

	format := srv.CodeFormat{
		Format:    settings.GetString(ctx, s.Settings, params.ClientID, settings.KeyServiceCodeFormat, "SRV-{num}"),
		Start:     0,
		Increment: 1,
	}
	err = s.DB.WithTxRetry(ctx, s.Config.Billing.MaxAddAttempts, func(ctx context.Context) error {
		return s.ServiceRepo.CreateWithCode(ctx, service, format)
	})
	if err != nil {
		if ierr.IsTransactionConflict(err) {
			return nil, ierr.WithError(err).
				WithHint("could not allocate a service code").
				WithReportableDetails(map[string]any{"service_add": "failed"}).
				Mark(ierr.ErrDatabase)
		}
		return nil, err
	}
	return service, nil
}

// syncAddonRenewal aligns an addon's renewal date to its parent's when the
// client setting asks for it and both pricings share the same cadence.
func (s *lifecycleService) syncAddonRenewal(ctx context.Context, service *srv.Service, pricing *catalog.Pricing, childProrated bool) error {
	parent, err := s.ServiceRepo.Get(ctx, *service.ParentServiceID)
	if err != nil {
		return err
	}
	if parent.ParentServiceID != nil {
		return ValidationErrorf("parent_service_id", "service %s is itself an addon and cannot be a parent", parent.ID)
	}
	if parent.ClientID != service.ClientID {
		return ValidationErrorf("parent_service_id", "parent belongs to a different client")
	}

	if !settings.GetBool(ctx, s.Settings, service.ClientID, settings.KeySynchronizeAddons) {
		return nil
	}

	parentPricing, err := s.CatalogRepo.GetPricing(ctx, parent.PricingID)
	if err != nil {
		return err
	}

	parentProrated := proration.Prorater{
		ProrataDay: parentPricing.ProrataDay,
		Term:       parentPricing.Term,
		Period:     parentPricing.Period,
	}.Enabled()

	if proration.CanSyncToParent(
		pricing.Term, pricing.Period, childProrated,
		parentPricing.Term, parentPricing.Period, parentProrated,
	) {
		service.DateRenews = parent.DateRenews
	}
	return nil
}

func (s *lifecycleService) Get(ctx context.Context, id string) (*srv.Service, error) {
	return s.ServiceRepo.Get(ctx, id)
}

func (s *lifecycleService) Activate(ctx context.Context, id string) (*srv.Service, error) {
	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !service.ServiceStatus.CanTransitionTo(types.ServiceStatusActive) {
		return nil, transitionError(service, types.ServiceStatusActive)
	}

	pkg, err := s.CatalogRepo.GetPackage(ctx, service.PackageID)
	if err != nil {
		return nil, err
	}
	module, err := s.Modules.Resolve(pkg.Module)
	if err != nil {
		return nil, err
	}

	result, err := module.AddService(ctx, service)
	if err != nil {
		return nil, err
	}
	applyModuleFields(service, result)

	from := service.ServiceStatus
	service.ServiceStatus = types.ServiceStatusActive

	// single-term packages never renew; they expire at the end of the term
	if pkg.SingleTerm {
		end := service.DateRenews
		service.DateCanceled = &end
	}

	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return nil, err
	}
	if err := s.recordStateChange(ctx, service, from, types.ServiceStatusActive, ""); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *lifecycleService) Suspend(ctx context.Context, id, reason string) error {
	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !service.ServiceStatus.CanTransitionTo(types.ServiceStatusSuspended) {
		return transitionError(service, types.ServiceStatusSuspended)
	}

	module, err := s.resolveModule(ctx, service)
	if err != nil {
		return err
	}
	result, err := module.SuspendService(ctx, service)
	if err != nil {
		return err
	}
	applyModuleFields(service, result)

	now := time.Now().UTC()
	from := service.ServiceStatus
	service.ServiceStatus = types.ServiceStatusSuspended
	service.DateSuspended = &now

	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return err
	}
	if err := s.recordStateChange(ctx, service, from, types.ServiceStatusSuspended, reason); err != nil {
		return err
	}

	s.dispatch(ctx, notification.KindServiceSuspended, service, map[string]string{
		"reason": reason,
	})
	return nil
}

func (s *lifecycleService) Unsuspend(ctx context.Context, id string) error {
	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if service.ServiceStatus != types.ServiceStatusSuspended {
		return transitionError(service, types.ServiceStatusActive)
	}

	module, err := s.resolveModule(ctx, service)
	if err != nil {
		return err
	}
	result, err := module.UnsuspendService(ctx, service)
	if err != nil {
		return err
	}
	applyModuleFields(service, result)

	from := service.ServiceStatus
	service.ServiceStatus = types.ServiceStatusActive
	service.DateSuspended = nil

	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return err
	}
	if err := s.recordStateChange(ctx, service, from, types.ServiceStatusActive, ""); err != nil {
		return err
	}

	s.dispatch(ctx, notification.KindServiceUnsuspended, service, nil)
	return nil
}

func (s *lifecycleService) AutoUnsuspendEligible(ctx context.Context, id string) (bool, error) {
	changes, err := s.ServiceRepo.ListStateChanges(ctx, id)
	if err != nil {
		return false, err
	}
	// walk backwards to the most recent suspension
	for i := len(changes) - 1; i >= 0; i-- {
		if changes[i].ToStatus == types.ServiceStatusSuspended {
			return changes[i].StaffID == "", nil
		}
	}
	return false, nil
}

func (s *lifecycleService) Cancel(ctx context.Context, id string, params CancelServiceParams) error {
	if err := params.Type.Validate(); err != nil {
		return err
	}
	if params.Type == types.CancellationTypeDate && params.Date == nil {
		return ValidationErrorf("date", "a cancellation date is required for type %s", params.Type)
	}

	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.cancel(ctx, service, params, true, time.Now().UTC())
}

// cancel runs the cancellation for one service. Children first; only the
// root triggers the void-on-cancel invoice cleanup.
func (s *lifecycleService) cancel(ctx context.Context, service *srv.Service, params CancelServiceParams, isRoot bool, now time.Time) error {
	if service.ServiceStatus == types.ServiceStatusCanceled {
		return nil
	}

	children, err := s.ServiceRepo.ListChildren(ctx, service.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.cancel(ctx, child, params, false, now); err != nil {
			return err
		}
	}

	canceledAt, err := s.resolveCancellationDate(service, params, now)
	if err != nil {
		return err
	}

	reason := params.Reason
	service.DateCanceled = &canceledAt
	if reason != "" {
		service.CancellationReason = &reason
	}

	if canceledAt.After(now) {
		// scheduled only: the status flips when the sweep reaches the date
		if err := s.ServiceRepo.Update(ctx, service); err != nil {
			return err
		}
		s.dispatch(ctx, notification.KindServiceScheduledCxl, service, map[string]string{
			"date_canceled": canceledAt.Format(time.RFC3339),
			"reason":        reason,
		})
	} else {
		if err := s.finalizeCancellation(ctx, service, reason); err != nil {
			return err
		}
	}

	if isRoot {
		if err := s.voidCanceledInvoices(ctx, service, now); err != nil {
			return err
		}
	}

	// after the cleanup so the fee invoice itself is never voided
	return s.chargeCancellationFee(ctx, service, canceledAt, now)
}

func (s *lifecycleService) resolveCancellationDate(service *srv.Service, params CancelServiceParams, now time.Time) (time.Time, error) {
	switch params.Type {
	case types.CancellationTypeNow:
		return now, nil
	case types.CancellationTypeDate:
		return *params.Date, nil
	case types.CancellationTypeEndOfTerm:
		return service.DateRenews, nil
	default:
		return time.Time{}, ValidationErrorf("type", "unknown cancellation type %q", params.Type)
	}
}

// finalizeCancellation invokes the module and flips the status. Used both
// for immediate cancellations and by the scheduled sweep.
func (s *lifecycleService) finalizeCancellation(ctx context.Context, service *srv.Service, reason string) error {
	// pending and in-review services were never provisioned; the module is
	// only told about services it has seen
	if service.ServiceStatus == types.ServiceStatusActive ||
		service.ServiceStatus == types.ServiceStatusSuspended {
		module, err := s.resolveModule(ctx, service)
		if err != nil {
			return err
		}
		result, err := module.CancelService(ctx, service)
		if err != nil {
			return err
		}
		applyModuleFields(service, result)
	}

	if !service.ServiceStatus.CanTransitionTo(types.ServiceStatusCanceled) {
		return transitionError(service, types.ServiceStatusCanceled)
	}

	from := service.ServiceStatus
	service.ServiceStatus = types.ServiceStatusCanceled

	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return err
	}
	if err := s.recordStateChange(ctx, service, from, types.ServiceStatusCanceled, reason); err != nil {
		return err
	}

	s.dispatch(ctx, notification.KindServiceCanceled, service, map[string]string{
		"reason": reason,
	})
	return nil
}

// chargeCancellationFee invoices the package's cancel fee when the service
// leaves before its scheduled renewal date.
func (s *lifecycleService) chargeCancellationFee(ctx context.Context, service *srv.Service, canceledAt, now time.Time) error {
	pricing, err := s.CatalogRepo.GetPricing(ctx, service.PricingID)
	if err != nil {
		return err
	}
	if pricing.CancelFee.IsZero() || canceledAt.Equal(service.DateRenews) {
		return nil
	}

	pkg, err := s.CatalogRepo.GetPackage(ctx, service.PackageID)
	if err != nil {
		return err
	}
	cl, err := s.ClientRepo.Get(ctx, service.ClientID)
	if err != nil {
		return err
	}

	fee, err := s.Converter.Convert(ctx, pricing.CancelFee, pricing.Currency, cl.Currency)
	if err != nil {
		return err
	}

	serviceID := service.ID
	_, err = s.invoices.Create(ctx, CreateInvoiceParams{
		ClientID:   service.ClientID,
		Currency:   cl.Currency,
		DateBilled: now,
		DateDue:    now,
		LineItems: []*invoice.LineItem{{
			ServiceID:   &serviceID,
			Description: fmt.Sprintf("%s - Cancellation Fee", pkg.Name),
			Quantity:    decimal.NewFromInt(1),
			Amount:      fee,
			Taxable:     pkg.Taxable,
		}},
	})
	return err
}

// voidCanceledInvoices clears the canceled service's lines off open
// invoices. Invoices holding only this service's lines are voided outright
// after unapplying their payments; mixed invoices lose just this service's
// lines and then have their payments greedily re-applied against the smaller
// balance. A past-due-tolerance window bounds how old an invoice may be.
func (s *lifecycleService) voidCanceledInvoices(ctx context.Context, service *srv.Service, now time.Time) error {
	if !settings.GetBool(ctx, s.Settings, service.ClientID, settings.KeyVoidOnCancel) {
		return nil
	}
	graceDays := settings.GetInt(ctx, s.Settings, service.ClientID, settings.KeyVoidOnCancelGraceDays, 0)

	open, err := s.InvoiceRepo.ListOpenByService(ctx, service.ID)
	if err != nil {
		return err
	}

	for _, inv := range open {
		if graceDays > 0 && now.After(inv.DateDue.AddDate(0, 0, graceDays)) {
			continue
		}

		serviceLines := inv.ServiceLineItems(service.ID)
		if len(serviceLines) == 0 {
			continue
		}

		if len(serviceLines) == len(inv.LineItems) {
			if err := s.voidWholeInvoice(ctx, inv.ID); err != nil {
				return err
			}
			continue
		}

		lineIDs := make([]string, 0, len(serviceLines))
		for _, line := range serviceLines {
			lineIDs = append(lineIDs, line.ID)
		}
		if err := s.InvoiceRepo.RemoveLineItems(ctx, inv.ID, lineIDs); err != nil {
			return err
		}
		if err := s.invoices.ReapplyPayments(ctx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *lifecycleService) voidWholeInvoice(ctx context.Context, invoiceID string) error {
	applications, err := s.TransactionRepo.ListApplicationsByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	for _, app := range applications {
		if err := s.invoices.UnapplyPayment(ctx, app.TransactionID, invoiceID); err != nil {
			return err
		}
	}
	return s.invoices.Void(ctx, invoiceID)
}

func (s *lifecycleService) Uncancel(ctx context.Context, id string) error {
	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.uncancel(ctx, service, time.Now().UTC())
}

func (s *lifecycleService) uncancel(ctx context.Context, service *srv.Service, now time.Time) error {
	if !service.CanUncancel(now) {
		return ierr.NewError("cancellation can no longer be withdrawn").
			WithHint("only a scheduled cancellation whose date has not arrived can be withdrawn").
			WithReportableDetails(map[string]any{
				"service_id":     service.ID,
				"service_status": service.ServiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	service.DateCanceled = nil
	service.CancellationReason = nil
	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return err
	}

	children, err := s.ServiceRepo.ListChildren(ctx, service.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if !child.CanUncancel(now) {
			continue
		}
		if err := s.uncancel(ctx, child, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *lifecycleService) Renew(ctx context.Context, serviceID, invoiceID string) error {
	service, err := s.ServiceRepo.Get(ctx, serviceID)
	if err != nil {
		return err
	}
	link, err := s.ServiceRepo.GetServiceInvoice(ctx, serviceID, invoiceID)
	if err != nil {
		return err
	}
	if link.ConsumedAt != nil {
		return nil
	}
	if link.FailedAttempts >= s.Config.Billing.MaxRenewAttempts {
		return ierr.NewError("renewal attempts exhausted").
			WithHintf("the module renewal notification failed %d times", link.FailedAttempts).
			WithReportableDetails(map[string]any{
				"service_id": serviceID,
				"invoice_id": invoiceID,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	module, err := s.resolveModule(ctx, service)
	if err != nil {
		return err
	}

	result, err := module.RenewService(ctx, service)
	if err != nil {
		link.FailedAttempts++
		if uerr := s.ServiceRepo.UpdateServiceInvoice(ctx, link); uerr != nil {
			s.Logger.Errorw("failed to record renewal attempt",
				"service_id", serviceID,
				"invoice_id", invoiceID,
				"error", uerr,
			)
		}
		return err
	}
	applyModuleFields(service, result)

	pricing, err := s.CatalogRepo.GetPricing(ctx, service.PricingID)
	if err != nil {
		return err
	}

	renewed := service.DateRenews
	next, err := types.NextRenewDate(renewed, pricing.Term, pricing.Period)
	if err != nil {
		return err
	}
	service.DateLastRenewed = &renewed
	service.DateRenews = next

	if err := s.ServiceRepo.Update(ctx, service); err != nil {
		return err
	}

	now := time.Now().UTC()
	link.ConsumedAt = &now
	return s.ServiceRepo.UpdateServiceInvoice(ctx, link)
}

func (s *lifecycleService) RunScheduledCancellations(ctx context.Context, now time.Time) error {
	due, err := s.ServiceRepo.ListScheduledForCancellation(ctx, now)
	if err != nil {
		return err
	}

	var failed int
	for _, service := range due {
		// the sweep crosses companies; scope each service to its own
		scoped := types.SetCompanyID(ctx, service.CompanyID)

		reason := ""
		if service.CancellationReason != nil {
			reason = *service.CancellationReason
		}
		if err := s.finalizeCancellation(scoped, service, reason); err != nil {
			failed++
			s.Logger.Errorw("scheduled cancellation failed",
				"service_id", service.ID,
				"company_id", service.CompanyID,
				"error", err,
			)
		}
	}

	if failed > 0 {
		return ierr.NewError("scheduled cancellation sweep finished with failures").
			WithHintf("%d of %d scheduled cancellations failed", failed, len(due)).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func (s *lifecycleService) InvoiceRenewals(ctx context.Context, asOf time.Time) error {
	aheadDays := settings.GetInt(ctx, s.Settings, "",
		settings.KeyInvoiceDaysBefore, s.Config.Billing.InvoiceDaysBefore)

	due, err := s.ServiceRepo.ListRenewable(ctx, asOf, aheadDays)
	if err != nil {
		return err
	}

	var failed int
	for _, service := range due {
		// the sweep crosses companies; scope each service to its own
		scoped := types.SetCompanyID(ctx, service.CompanyID)

		if err := s.billRenewal(scoped, service, asOf); err != nil {
			failed++
			s.Logger.Errorw("renewal invoicing failed",
				"service_id", service.ID,
				"company_id", service.CompanyID,
				"error", err,
			)
		}
	}

	if failed > 0 {
		return ierr.NewError("renewal invoicing sweep finished with failures").
			WithHintf("%d of %d renewals failed to invoice", failed, len(due)).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

// billRenewal prices one service's upcoming period, commits the invoice and
// records the service-invoice link that Renew later consumes. A service
// whose latest link is still unconsumed is already billed and skipped.
func (s *lifecycleService) billRenewal(ctx context.Context, service *srv.Service, asOf time.Time) error {
	links, err := s.ServiceRepo.ListServiceInvoices(ctx, service.ID)
	if err != nil {
		return err
	}
	for _, link := range links {
		if link.ConsumedAt == nil {
			return nil
		}
	}

	opts := PriceOptions{
		Tier:      types.PriceTierRenewal,
		ApplyDate: asOf,
	}
	if service.DateLastRenewed == nil && service.ServiceStatus == types.ServiceStatusPending {
		// first invoice for a never-billed service: setup fee applies and
		// a prorata pricing charges only the partial first period
		dateAdded := service.DateAdded
		opts.Tier = types.PriceTierNew
		opts.IncludeSetupFee = true
		opts.ProrateFrom = &dateAdded
	}

	quote, err := s.pricing.PriceService(ctx, service, opts)
	if err != nil {
		return err
	}

	dateDue := service.DateRenews
	if dateDue.Before(asOf) {
		dateDue = asOf
	}

	inv, err := s.invoices.Create(ctx, CreateInvoiceParams{
		ClientID:   service.ClientID,
		Currency:   quote.Currency,
		DateBilled: asOf,
		DateDue:    dateDue,
		LineItems:  LinesFromQuote(quote),
		CouponID:   quote.CouponID,
	})
	if err != nil {
		return err
	}

	return s.ServiceRepo.AddServiceInvoice(ctx, &srv.ServiceInvoice{
		ServiceID: service.ID,
		InvoiceID: inv.ID,
	})
}

func (s *lifecycleService) Delete(ctx context.Context, id string) error {
	service, err := s.ServiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	children, err := s.ServiceRepo.ListChildren(ctx, service.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.ServiceStatus == types.ServiceStatusActive ||
			child.ServiceStatus == types.ServiceStatusSuspended {
			return ierr.WithError(srv.ErrHasActiveChildren).
				WithHintf("addon %s is still %s", child.ID, child.ServiceStatus).
				WithReportableDetails(map[string]any{
					"service_id":       service.ID,
					"child_service_id": child.ID,
					"child_status":     child.ServiceStatus,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
	}

	return s.ServiceRepo.Delete(ctx, service.ID)
}

func (s *lifecycleService) resolveModule(ctx context.Context, service *srv.Service) (provisioning.Module, error) {
	pkg, err := s.CatalogRepo.GetPackage(ctx, service.PackageID)
	if err != nil {
		return nil, err
	}
	return s.Modules.Resolve(pkg.Module)
}

func (s *lifecycleService) recordStateChange(ctx context.Context, service *srv.Service, from, to types.ServiceStatus, reason string) error {
	return s.ServiceRepo.AddStateChange(ctx, &srv.StateChange{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_STATE_CHANGE),
		ServiceID:  service.ID,
		FromStatus: from,
		ToStatus:   to,
		StaffID:    types.GetStaffID(ctx),
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *lifecycleService) dispatch(ctx context.Context, kind notification.Kind, service *srv.Service, data map[string]string) {
	if data == nil {
		data = map[string]string{}
	}
	data["service_id"] = service.ID

	if err := s.Sink.Dispatch(ctx, notification.Notice{
		Kind:     kind,
		ClientID: service.ClientID,
		Data:     data,
	}); err != nil {
		s.Logger.Warnw("notice dispatch failed",
			"kind", kind,
			"service_id", service.ID,
			"error", err,
		)
	}
}

// applyModuleFields writes a module result's field updates back onto the
// service. Unknown fields are ignored.
func applyModuleFields(service *srv.Service, result *provisioning.Result) {
	if result == nil || result.Fields == nil {
		return
	}
	if rowID, ok := result.Fields["module_row_id"]; ok {
		service.ModuleRowID = &rowID
	}
}

func transitionError(service *srv.Service, target types.ServiceStatus) error {
	return ierr.WithError(srv.ErrInvalidTransition).
		WithHintf("cannot move service from %s to %s", service.ServiceStatus, target).
		WithReportableDetails(map[string]any{
			"service_id": service.ID,
			"from":       service.ServiceStatus,
			"to":         target,
		}).
		Mark(ierr.ErrInvalidOperation)
}
