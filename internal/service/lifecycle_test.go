package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/domain/catalog"
	"github.com/stackbill/stackbill/internal/domain/client"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	srv "github.com/stackbill/stackbill/internal/domain/service"
	"github.com/stackbill/stackbill/internal/domain/transaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

type LifecycleServiceSuite struct {
	testutil.BaseServiceTestSuite
	lifecycle LifecycleService
	invoices  InvoiceService
	module    *testutil.FakeModule

	clientID  string
	packageID string
	pricingID string
}

func TestLifecycleService(t *testing.T) {
	suite.Run(t, new(LifecycleServiceSuite))
}

func (s *LifecycleServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.lifecycle = NewLifecycleService(params)
	s.invoices = NewInvoiceService(params)

	s.module = testutil.NewFakeModule("shared_hosting")
	s.GetRegistry().Register(s.module)

	ctx := s.GetContext()
	cl := &client.Client{
		ID:        "clnt_1",
		Name:      "Acme Hosting",
		Email:     "billing@acme.test",
		Currency:  "USD",
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().ClientRepo.Create(ctx, cl))
	s.clientID = cl.ID

	pkg := &catalog.Package{
		ID:        "pkg_basic",
		Name:      "Basic Hosting",
		Module:    s.module.Name(),
		Taxable:   false,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePackage(ctx, pkg))
	s.packageID = pkg.ID

	pricing := &catalog.Pricing{
		ID:        "prc_monthly",
		PackageID: pkg.ID,
		Term:      1,
		Period:    types.BillingPeriodMonth,
		Price:     decimal.NewFromInt(10),
		Currency:  "USD",
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePricing(ctx, pricing))
	s.pricingID = pricing.ID
}

func (s *LifecycleServiceSuite) newService() *srv.Service {
	service, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:  s.clientID,
		PackageID: s.packageID,
		PricingID: s.pricingID,
		Qty:       1,
	})
	s.Require().NoError(err)
	return service
}

// createCatalog registers an extra package/pricing pair for tests needing
// single-term or cancel-fee behavior.
func (s *LifecycleServiceSuite) createCatalog(suffix string, singleTerm bool, cancelFee decimal.Decimal) (string, string) {
	ctx := s.GetContext()
	pkg := &catalog.Package{
		ID:         "pkg_" + suffix,
		Name:       "Basic Hosting " + suffix,
		Module:     s.module.Name(),
		SingleTerm: singleTerm,
		BaseModel:  types.GetDefaultBaseModel(ctx),
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePackage(ctx, pkg))

	pricing := &catalog.Pricing{
		ID:        "prc_" + suffix,
		PackageID: pkg.ID,
		Term:      1,
		Period:    types.BillingPeriodMonth,
		Price:     decimal.NewFromInt(10),
		CancelFee: cancelFee,
		Currency:  "USD",
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePricing(ctx, pricing))
	return pkg.ID, pricing.ID
}

func (s *LifecycleServiceSuite) activeServiceOf(packageID, pricingID string) *srv.Service {
	service, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:  s.clientID,
		PackageID: packageID,
		PricingID: pricingID,
		Qty:       1,
	})
	s.Require().NoError(err)
	activated, err := s.lifecycle.Activate(s.GetContext(), service.ID)
	s.Require().NoError(err)
	return activated
}

func (s *LifecycleServiceSuite) activeService() *srv.Service {
	service := s.newService()
	activated, err := s.lifecycle.Activate(s.GetContext(), service.ID)
	s.Require().NoError(err)
	return activated
}

func (s *LifecycleServiceSuite) TestCreateStartsPendingWithRenewalDate() {
	service := s.newService()

	s.Equal(types.ServiceStatusPending, service.ServiceStatus)
	want, err := types.NextRenewDate(service.DateAdded, 1, types.BillingPeriodMonth)
	s.Require().NoError(err)
	s.True(service.DateRenews.Equal(want))
	s.Equal(0, s.module.CallsTo("add"))
}

func (s *LifecycleServiceSuite) TestActivateProvisionsThroughModule() {
	s.module.Fields = map[string]string{"module_row_id": "row-42"}

	service := s.activeService()

	s.Equal(types.ServiceStatusActive, service.ServiceStatus)
	s.Equal(1, s.module.CallsTo("add"))
	s.Require().NotNil(service.ModuleRowID)
	s.Equal("row-42", *service.ModuleRowID)

	changes, err := s.GetStores().ServiceRepo.ListStateChanges(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Require().Len(changes, 1)
	s.Equal(types.ServiceStatusPending, changes[0].FromStatus)
	s.Equal(types.ServiceStatusActive, changes[0].ToStatus)
}

func (s *LifecycleServiceSuite) TestActivateSurfacesModuleRejection() {
	s.module.FailOn["add"] = true
	service := s.newService()

	_, err := s.lifecycle.Activate(s.GetContext(), service.ID)
	s.Error(err)
	s.True(ierr.IsCapability(err))

	got, gerr := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(gerr)
	s.Equal(types.ServiceStatusPending, got.ServiceStatus)
}

func (s *LifecycleServiceSuite) TestSingleTermPackageExpiresAtTermEnd() {
	pkgID, prcID := s.createCatalog("single", true, decimal.Zero)
	service := s.activeServiceOf(pkgID, prcID)

	s.Require().NotNil(service.DateCanceled)
	s.True(service.DateCanceled.Equal(service.DateRenews))
}

func (s *LifecycleServiceSuite) TestSuspendAndUnsuspend() {
	service := s.activeService()

	s.Require().NoError(s.lifecycle.Suspend(s.GetContext(), service.ID, "non-payment"))
	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusSuspended, got.ServiceStatus)
	s.NotNil(got.DateSuspended)
	s.Equal(1, s.module.CallsTo("suspend"))
	s.Len(s.GetSink().Of(notification.KindServiceSuspended), 1)

	s.Require().NoError(s.lifecycle.Unsuspend(s.GetContext(), service.ID))
	got, err = s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusActive, got.ServiceStatus)
	s.Nil(got.DateSuspended)
	s.Equal(1, s.module.CallsTo("unsuspend"))
	s.Len(s.GetSink().Of(notification.KindServiceUnsuspended), 1)
}

func (s *LifecycleServiceSuite) TestAutoUnsuspendOnlyForSystemSuspensions() {
	service := s.activeService()

	// staff-initiated suspension is not auto-unsuspendable
	s.Require().NoError(s.lifecycle.Suspend(s.GetContext(), service.ID, "abuse"))
	eligible, err := s.lifecycle.AutoUnsuspendEligible(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.False(eligible)

	s.Require().NoError(s.lifecycle.Unsuspend(s.GetContext(), service.ID))

	// system context carries no staff actor
	systemCtx := types.SetCompanyID(context.Background(), types.DefaultCompanyID)
	s.Require().NoError(s.lifecycle.Suspend(systemCtx, service.ID, "non-payment"))
	eligible, err = s.lifecycle.AutoUnsuspendEligible(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.True(eligible)
}

func (s *LifecycleServiceSuite) TestCancelNowInvokesModuleAndNotifies() {
	service := s.activeService()

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type:   types.CancellationTypeNow,
		Reason: "customer request",
	}))

	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusCanceled, got.ServiceStatus)
	s.NotNil(got.DateCanceled)
	s.Equal(1, s.module.CallsTo("cancel"))
	s.Len(s.GetSink().Of(notification.KindServiceCanceled), 1)
}

func (s *LifecycleServiceSuite) TestCancelFutureOnlySchedules() {
	service := s.activeService()
	when := time.Now().UTC().AddDate(0, 0, 10)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeDate,
		Date: &when,
	}))

	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusActive, got.ServiceStatus)
	s.Require().NotNil(got.DateCanceled)
	s.True(got.DateCanceled.Equal(when))
	s.Equal(0, s.module.CallsTo("cancel"))
	s.Len(s.GetSink().Of(notification.KindServiceScheduledCxl), 1)
}

func (s *LifecycleServiceSuite) TestScheduledCancellationSweepFinalizes() {
	service := s.activeService()
	when := time.Now().UTC().AddDate(0, 0, 10)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeDate,
		Date: &when,
	}))

	// before the date nothing happens
	s.Require().NoError(s.lifecycle.RunScheduledCancellations(s.GetContext(), time.Now().UTC()))
	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusActive, got.ServiceStatus)

	s.Require().NoError(s.lifecycle.RunScheduledCancellations(s.GetContext(), when.AddDate(0, 0, 1)))
	got, err = s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusCanceled, got.ServiceStatus)
	s.Equal(1, s.module.CallsTo("cancel"))
}

func (s *LifecycleServiceSuite) TestUncancelClearsSchedule() {
	service := s.activeService()
	when := time.Now().UTC().AddDate(0, 0, 10)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeDate,
		Date: &when,
	}))
	s.Require().NoError(s.lifecycle.Uncancel(s.GetContext(), service.ID))

	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Nil(got.DateCanceled)
	s.Nil(got.CancellationReason)
	s.Equal(types.ServiceStatusActive, got.ServiceStatus)
}

func (s *LifecycleServiceSuite) TestUncancelRejectedOnceCanceled() {
	service := s.activeService()
	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	err := s.lifecycle.Uncancel(s.GetContext(), service.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *LifecycleServiceSuite) TestCancelRecursesIntoChildren() {
	parent := s.activeService()

	child, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:        s.clientID,
		PackageID:       s.packageID,
		PricingID:       s.pricingID,
		ParentServiceID: &parent.ID,
		Qty:             1,
	})
	s.Require().NoError(err)
	_, err = s.lifecycle.Activate(s.GetContext(), child.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), parent.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	gotChild, err := s.lifecycle.Get(s.GetContext(), child.ID)
	s.Require().NoError(err)
	s.Equal(types.ServiceStatusCanceled, gotChild.ServiceStatus)
	s.Equal(2, s.module.CallsTo("cancel"))
}

func (s *LifecycleServiceSuite) TestEarlyCancelChargesCancellationFee() {
	pkgID, prcID := s.createCatalog("fee", false, decimal.NewFromInt(25))

	service := s.activeServiceOf(pkgID, prcID)
	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	open, err := s.GetStores().InvoiceRepo.ListOpenByService(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Require().Len(open[0].LineItems, 1)
	s.Contains(open[0].LineItems[0].Description, "Cancellation Fee")
	s.True(decimal.NewFromInt(25).Equal(open[0].Total))
}

func (s *LifecycleServiceSuite) TestEndOfTermCancelSkipsCancellationFee() {
	pkgID, prcID := s.createCatalog("fee", false, decimal.NewFromInt(25))

	service := s.activeServiceOf(pkgID, prcID)
	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeEndOfTerm,
	}))

	open, err := s.GetStores().InvoiceRepo.ListOpenByService(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Empty(open)
}

func (s *LifecycleServiceSuite) TestCancelVoidsAndStripsOpenInvoices() {
	s.GetSettings().SetCompany("void_invoices_canceled_services", "true")

	service := s.activeService()
	serviceID := service.ID

	// invoice holding only the canceled service's line
	exclusive, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		LineItems: []*invoice.LineItem{{
			ServiceID:   &serviceID,
			Description: "Basic Hosting",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(100),
		}},
	})
	s.Require().NoError(err)

	// invoice mixing the service's line with an unrelated one
	mixed, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		LineItems: []*invoice.LineItem{
			{
				ServiceID:   &serviceID,
				Description: "Basic Hosting",
				Quantity:    decimal.NewFromInt(1),
				Amount:      decimal.NewFromInt(100),
			},
			{
				Description: "Domain registration",
				Quantity:    decimal.NewFromInt(1),
				Amount:      decimal.NewFromInt(50),
			},
		},
	})
	s.Require().NoError(err)

	txn := &transaction.Transaction{
		ID:        "txn_1",
		ClientID:  s.clientID,
		Amount:    decimal.NewFromInt(200),
		Currency:  "USD",
		TxStatus:  types.TransactionStatusApproved,
		DateAdded: time.Now().UTC(),
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().TransactionRepo.Create(s.GetContext(), txn))
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, exclusive.ID, decimal.NewFromInt(60)))
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, mixed.ID, decimal.NewFromInt(120)))

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	// the exclusive invoice is voided with its payment returned
	gotExclusive, err := s.invoices.Get(s.GetContext(), exclusive.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusVoid, gotExclusive.InvoiceStatus)
	s.True(gotExclusive.Paid.IsZero())

	// the mixed invoice keeps only the unrelated line, its payment capped
	// at the smaller total
	gotMixed, err := s.invoices.Get(s.GetContext(), mixed.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusActive, gotMixed.InvoiceStatus)
	s.Require().Len(gotMixed.LineItems, 1)
	s.Equal("Domain registration", gotMixed.LineItems[0].Description)
	s.True(decimal.NewFromInt(50).Equal(gotMixed.Total), "total %s", gotMixed.Total)
	s.True(decimal.NewFromInt(50).Equal(gotMixed.Paid), "paid %s", gotMixed.Paid)

	// 200 - 50 reapplied
	refreshed, err := s.GetStores().TransactionRepo.Get(s.GetContext(), txn.ID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(150).Equal(refreshed.Available()), "available %s", refreshed.Available())
}

func (s *LifecycleServiceSuite) TestVoidOnCancelHonorsGraceWindow() {
	s.GetSettings().SetCompany("void_invoices_canceled_services", "true")
	s.GetSettings().SetCompany("void_invoices_canceled_services_days", "7")

	service := s.activeService()
	serviceID := service.ID

	stale, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		DateDue:  time.Now().UTC().AddDate(0, 0, -30),
		LineItems: []*invoice.LineItem{{
			ServiceID:   &serviceID,
			Description: "Basic Hosting",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(100),
		}},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), service.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	// a month past due is outside the 7-day window, so the invoice survives
	got, gerr := s.invoices.Get(s.GetContext(), stale.ID)
	s.Require().NoError(gerr)
	s.Equal(types.InvoiceStatusActive, got.InvoiceStatus)
}

func (s *LifecycleServiceSuite) TestRenewAdvancesServiceAndConsumesLink() {
	service := s.activeService()

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		LineItems: []*invoice.LineItem{{
			ServiceID:   &service.ID,
			Description: "Basic Hosting renewal",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(10),
		}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.GetStores().ServiceRepo.AddServiceInvoice(s.GetContext(), &srv.ServiceInvoice{
		ServiceID: service.ID,
		InvoiceID: inv.ID,
	}))

	before := service.DateRenews
	s.Require().NoError(s.lifecycle.Renew(s.GetContext(), service.ID, inv.ID))

	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	want, err := types.NextRenewDate(before, 1, types.BillingPeriodMonth)
	s.Require().NoError(err)
	s.True(got.DateRenews.Equal(want))
	s.Require().NotNil(got.DateLastRenewed)
	s.True(got.DateLastRenewed.Equal(before))

	link, err := s.GetStores().ServiceRepo.GetServiceInvoice(s.GetContext(), service.ID, inv.ID)
	s.Require().NoError(err)
	s.NotNil(link.ConsumedAt)
	s.Equal(1, s.module.CallsTo("renew"))
}

func (s *LifecycleServiceSuite) TestRenewFailureCountsAttempts() {
	s.module.FailOn["renew"] = true
	service := s.activeService()

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		LineItems: []*invoice.LineItem{{
			ServiceID:   &service.ID,
			Description: "Basic Hosting renewal",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(10),
		}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.GetStores().ServiceRepo.AddServiceInvoice(s.GetContext(), &srv.ServiceInvoice{
		ServiceID: service.ID,
		InvoiceID: inv.ID,
	}))

	before := service.DateRenews
	for i := 0; i < s.GetConfig().Billing.MaxRenewAttempts; i++ {
		err = s.lifecycle.Renew(s.GetContext(), service.ID, inv.ID)
		s.Error(err)
		s.True(ierr.IsCapability(err))
	}

	// the cap is reached before the module is called again
	err = s.lifecycle.Renew(s.GetContext(), service.ID, inv.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.Equal(s.GetConfig().Billing.MaxRenewAttempts, s.module.CallsTo("renew"))

	got, gerr := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(gerr)
	s.True(got.DateRenews.Equal(before))
}

func (s *LifecycleServiceSuite) TestCreateAllocatesSequentialCodes() {
	first := s.newService()
	second := s.newService()

	s.Equal(int64(1), first.Code)
	s.Equal(int64(2), second.Code)
	s.Equal("SRV-1", first.DisplayCode())
}

func (s *LifecycleServiceSuite) TestCreateHonorsCodeFormatSetting() {
	s.GetSettings().SetCompany("service_code_format", "HOST-{year}-{num}")

	service := s.newService()

	s.Equal(int64(1), service.Code)
	s.Contains(service.CodeFormat, time.Now().UTC().Format("2006"))
	s.Contains(service.DisplayCode(), "HOST-")
}

func (s *LifecycleServiceSuite) TestCreateRetriesThroughCodeConflicts() {
	s.GetStores().ServiceStore.InjectConflicts(s.GetConfig().Billing.MaxAddAttempts - 1)

	service := s.newService()
	s.Equal(int64(1), service.Code)
}

func (s *LifecycleServiceSuite) TestCreateFailsAfterExhaustingCodeRetries() {
	s.GetStores().ServiceStore.InjectConflicts(s.GetConfig().Billing.MaxAddAttempts)

	_, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:  s.clientID,
		PackageID: s.packageID,
		PricingID: s.pricingID,
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrDatabase))
}

func (s *LifecycleServiceSuite) TestInvoiceRenewalsBillsUpcomingRenewal() {
	service := s.activeService()

	s.Require().NoError(s.lifecycle.InvoiceRenewals(s.GetContext(), service.DateRenews))

	links, err := s.GetStores().ServiceRepo.ListServiceInvoices(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Nil(links[0].ConsumedAt)

	inv, err := s.invoices.Get(s.GetContext(), links[0].InvoiceID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(10).Equal(inv.Total), inv.Total.String())
	s.True(inv.DateDue.Equal(service.DateRenews))
	s.Require().Len(inv.LineItems, 1)
	s.Require().NotNil(inv.LineItems[0].ServiceID)
	s.Equal(service.ID, *inv.LineItems[0].ServiceID)
}

func (s *LifecycleServiceSuite) TestInvoiceRenewalsSkipsOutsideLookAhead() {
	service := s.activeService()

	// a month out is beyond the default five-day window
	s.Require().NoError(s.lifecycle.InvoiceRenewals(s.GetContext(), service.DateAdded))

	links, err := s.GetStores().ServiceRepo.ListServiceInvoices(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Empty(links)
}

func (s *LifecycleServiceSuite) TestInvoiceRenewalsSkipsAlreadyBilledService() {
	service := s.activeService()

	s.Require().NoError(s.lifecycle.InvoiceRenewals(s.GetContext(), service.DateRenews))
	s.Require().NoError(s.lifecycle.InvoiceRenewals(s.GetContext(), service.DateRenews))

	links, err := s.GetStores().ServiceRepo.ListServiceInvoices(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Len(links, 1)
}

func (s *LifecycleServiceSuite) TestInvoiceRenewalsFirstBillChargesSetupFee() {
	ctx := s.GetContext()
	pricing := &catalog.Pricing{
		ID:        "prc_setup",
		PackageID: s.packageID,
		Term:      1,
		Period:    types.BillingPeriodMonth,
		Price:     decimal.NewFromInt(10),
		SetupFee:  decimal.NewFromInt(5),
		Currency:  "USD",
	}
	s.Require().NoError(s.GetStores().CatalogRepo.CreatePricing(ctx, pricing))

	service, err := s.lifecycle.Create(ctx, CreateServiceParams{
		ClientID:  s.clientID,
		PackageID: s.packageID,
		PricingID: pricing.ID,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.lifecycle.InvoiceRenewals(ctx, service.DateRenews))

	links, lerr := s.GetStores().ServiceRepo.ListServiceInvoices(ctx, service.ID)
	s.Require().NoError(lerr)
	s.Require().Len(links, 1)

	inv, gerr := s.invoices.Get(ctx, links[0].InvoiceID)
	s.Require().NoError(gerr)
	s.Require().Len(inv.LineItems, 2)
	s.True(decimal.NewFromInt(15).Equal(inv.Total), inv.Total.String())
}

func (s *LifecycleServiceSuite) TestSchedulerInvoiceFeedsRenew() {
	service := s.activeService()
	s.Require().NoError(s.lifecycle.InvoiceRenewals(s.GetContext(), service.DateRenews))

	links, err := s.GetStores().ServiceRepo.ListServiceInvoices(s.GetContext(), service.ID)
	s.Require().NoError(err)
	s.Require().Len(links, 1)

	before := service.DateRenews
	s.Require().NoError(s.lifecycle.Renew(s.GetContext(), service.ID, links[0].InvoiceID))

	got, err := s.lifecycle.Get(s.GetContext(), service.ID)
	s.Require().NoError(err)
	want, err := types.NextRenewDate(before, 1, types.BillingPeriodMonth)
	s.Require().NoError(err)
	s.True(got.DateRenews.Equal(want))
	s.Equal(1, s.module.CallsTo("renew"))
}

func (s *LifecycleServiceSuite) TestDeleteRejectedWhileAddonActive() {
	parent := s.activeService()
	child, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:        s.clientID,
		PackageID:       s.packageID,
		PricingID:       s.pricingID,
		ParentServiceID: &parent.ID,
	})
	s.Require().NoError(err)
	_, err = s.lifecycle.Activate(s.GetContext(), child.ID)
	s.Require().NoError(err)

	err = s.lifecycle.Delete(s.GetContext(), parent.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
	s.True(errors.Is(err, srv.ErrHasActiveChildren))

	_, err = s.lifecycle.Get(s.GetContext(), parent.ID)
	s.NoError(err)
}

func (s *LifecycleServiceSuite) TestDeleteAllowedOnceAddonsResolved() {
	parent := s.activeService()
	child, err := s.lifecycle.Create(s.GetContext(), CreateServiceParams{
		ClientID:        s.clientID,
		PackageID:       s.packageID,
		PricingID:       s.pricingID,
		ParentServiceID: &parent.ID,
	})
	s.Require().NoError(err)
	_, err = s.lifecycle.Activate(s.GetContext(), child.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.lifecycle.Cancel(s.GetContext(), child.ID, CancelServiceParams{
		Type: types.CancellationTypeNow,
	}))

	s.Require().NoError(s.lifecycle.Delete(s.GetContext(), parent.ID))

	_, err = s.lifecycle.Get(s.GetContext(), parent.ID)
	s.True(ierr.IsNotFound(err))
}
