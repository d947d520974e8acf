package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/domain/client"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/recurring"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

type RecurringServiceSuite struct {
	testutil.BaseServiceTestSuite
	recurrings RecurringService
	clientID   string
}

func TestRecurringService(t *testing.T) {
	suite.Run(t, new(RecurringServiceSuite))
}

func (s *RecurringServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.recurrings = NewRecurringService(newTestServiceParams(&s.BaseServiceTestSuite))

	cl := &client.Client{
		ID:        "clnt_1",
		Name:      "Acme Hosting",
		Email:     "billing@acme.test",
		Currency:  "USD",
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ClientRepo.Create(s.GetContext(), cl))
	s.clientID = cl.ID
}

func (s *RecurringServiceSuite) newTemplate(dateRenews time.Time, duration *int) *recurring.RecurringInvoice {
	template, err := s.recurrings.Create(s.GetContext(), &recurring.RecurringInvoice{
		ClientID:   s.clientID,
		Term:       1,
		Period:     types.BillingPeriodMonth,
		Duration:   duration,
		DateRenews: dateRenews,
		Currency:   "USD",
		LineItems: []*recurring.LineItem{{
			Description: "Managed hosting",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(25),
		}},
	})
	s.Require().NoError(err)
	return template
}

func (s *RecurringServiceSuite) invoicesFor(templateID string) []*invoice.Invoice {
	all, err := s.GetStores().InvoiceRepo.ListByClient(s.GetContext(), s.clientID)
	s.Require().NoError(err)

	var linked []*invoice.Invoice
	for _, inv := range all {
		if inv.RecurringInvoiceID != nil && *inv.RecurringInvoiceID == templateID {
			linked = append(linked, inv)
		}
	}
	return linked
}

func (s *RecurringServiceSuite) TestCatchUpGeneratesOneInvoicePerMissedCycle() {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	start := types.AddClampedDate(now, 0, -3, 0)
	template := s.newTemplate(start, nil)

	created, err := s.recurrings.ProcessTemplate(s.GetContext(), template.ID, now)
	s.Require().NoError(err)

	// three missed cycles plus the cycle the look-ahead makes due today
	s.Equal(4, created)

	linked := s.invoicesFor(template.ID)
	s.Len(linked, 4)
	for _, inv := range linked {
		// every cycle start is on or before today, so everything is due now
		s.False(inv.DateDue.After(now), "invoice %s due %s", inv.ID, inv.DateDue)
		s.Require().Len(inv.LineItems, 1)
		s.Contains(inv.LineItems[0].Description, "Managed hosting (")
	}

	got, err := s.recurrings.Get(s.GetContext(), template.ID)
	s.Require().NoError(err)
	wantRenews := types.AddClampedDate(start, 0, 4, 0)
	s.True(got.DateRenews.Equal(wantRenews), "date_renews %s", got.DateRenews)
	s.Require().NotNil(got.DateLastRenewed)
	s.True(got.DateLastRenewed.Equal(types.AddClampedDate(start, 0, 3, 0)))
}

func (s *RecurringServiceSuite) TestFutureRenewalDueDatedAtRenewal() {
	now := s.GetNow()
	renews := now.AddDate(0, 0, 3) // inside the default 5-day look-ahead
	template := s.newTemplate(renews, nil)

	created, err := s.recurrings.ProcessTemplate(s.GetContext(), template.ID, now)
	s.Require().NoError(err)
	s.Equal(1, created)

	linked := s.invoicesFor(template.ID)
	s.Require().Len(linked, 1)
	s.True(linked[0].DateDue.Equal(renews))
}

func (s *RecurringServiceSuite) TestTemplateOutsideLookAheadIsLeftAlone() {
	now := s.GetNow()
	template := s.newTemplate(now.AddDate(0, 0, 10), nil)

	created, err := s.recurrings.ProcessTemplate(s.GetContext(), template.ID, now)
	s.Require().NoError(err)
	s.Equal(0, created)
	s.Empty(s.invoicesFor(template.ID))
}

func (s *RecurringServiceSuite) TestDurationCapsProducedInvoices() {
	now := s.GetNow()
	duration := 2
	template := s.newTemplate(types.AddClampedDate(now, 0, -5, 0), &duration)

	created, err := s.recurrings.ProcessTemplate(s.GetContext(), template.ID, now)
	s.Require().NoError(err)
	s.Equal(2, created)
	s.Len(s.invoicesFor(template.ID), 2)
}

func (s *RecurringServiceSuite) TestFailedCreationStopsWithoutAdvancing() {
	now := s.GetNow()
	start := types.AddClampedDate(now, 0, -2, 0)
	template := s.newTemplate(start, nil)

	// every allocation attempt conflicts, so the first iteration fails
	s.GetStores().InvoiceStore.InjectConflicts(100)

	created, err := s.recurrings.ProcessTemplate(s.GetContext(), template.ID, now)
	s.Error(err)
	s.Equal(0, created)

	got, gerr := s.recurrings.Get(s.GetContext(), template.ID)
	s.Require().NoError(gerr)
	s.True(got.DateRenews.Equal(start), "date_renews advanced to %s", got.DateRenews)
	s.Nil(got.DateLastRenewed)
}

func (s *RecurringServiceSuite) TestRunProcessesEveryDueTemplate() {
	now := s.GetNow()
	first := s.newTemplate(types.AddClampedDate(now, 0, -1, 0), nil)
	second := s.newTemplate(types.AddClampedDate(now, 0, -2, 0), nil)
	idle := s.newTemplate(now.AddDate(0, 0, 30), nil)

	s.Require().NoError(s.recurrings.Run(s.GetContext(), now))

	s.Len(s.invoicesFor(first.ID), 2)
	s.Len(s.invoicesFor(second.ID), 3)
	s.Empty(s.invoicesFor(idle.ID))
}

func (s *RecurringServiceSuite) TestPromoteDraftBuildsTemplateFromMetadata() {
	invoices := NewInvoiceService(newTestServiceParams(&s.BaseServiceTestSuite))

	renews := s.GetNow().AddDate(0, 1, 0)
	draft, err := invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		Status:   types.InvoiceStatusDraft,
		LineItems: []*invoice.LineItem{{
			Description: "Managed hosting",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(25),
		}},
		Metadata: types.Metadata{
			types.MetadataKeyRecurTerm:     "1",
			types.MetadataKeyRecurPeriod:   string(types.BillingPeriodMonth),
			types.MetadataKeyRecurDuration: "12",
			types.MetadataKeyRecurDate:     renews.Format(time.RFC3339),
		},
	})
	s.Require().NoError(err)

	template, err := s.recurrings.PromoteDraft(s.GetContext(), draft.ID)
	s.Require().NoError(err)

	s.Equal(1, template.Term)
	s.Equal(types.BillingPeriodMonth, template.Period)
	s.Require().NotNil(template.Duration)
	s.Equal(12, *template.Duration)
	s.Require().Len(template.LineItems, 1)
	s.Equal("Managed hosting", template.LineItems[0].Description)
	s.WithinDuration(renews, template.DateRenews, time.Second)
}

func (s *RecurringServiceSuite) TestPromoteRejectsNonDraft() {
	invoices := NewInvoiceService(newTestServiceParams(&s.BaseServiceTestSuite))

	active, err := invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID: s.clientID,
		Currency: "USD",
		LineItems: []*invoice.LineItem{{
			Description: "Managed hosting",
			Quantity:    decimal.NewFromInt(1),
			Amount:      decimal.NewFromInt(25),
		}},
	})
	s.Require().NoError(err)

	_, err = s.recurrings.PromoteDraft(s.GetContext(), active.ID)
	s.Error(err)
}
