package service

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/domain/client"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/taxrule"
	"github.com/stackbill/stackbill/internal/domain/transaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/testutil"
	"github.com/stackbill/stackbill/internal/types"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	invoices InvoiceService
	clientID string
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.invoices = NewInvoiceService(newTestServiceParams(&s.BaseServiceTestSuite))

	cl := &client.Client{
		ID:        "clnt_1",
		Name:      "Acme Hosting",
		Email:     "billing@acme.test",
		Country:   "US",
		State:     "CA",
		Currency:  "USD",
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ClientRepo.Create(s.GetContext(), cl))
	s.clientID = cl.ID
}

func (s *InvoiceServiceSuite) line(desc string, amount float64) *invoice.LineItem {
	return &invoice.LineItem{
		Description: desc,
		Quantity:    decimal.NewFromInt(1),
		Amount:      decimal.NewFromFloat(amount),
		Taxable:     false,
	}
}

func (s *InvoiceServiceSuite) createInvoice(amounts ...float64) *invoice.Invoice {
	lines := make([]*invoice.LineItem, 0, len(amounts))
	for _, amount := range amounts {
		lines = append(lines, s.line("Hosting", amount))
	}
	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:   s.clientID,
		Currency:   "USD",
		DateBilled: s.GetNow(),
		DateDue:    s.GetNow().AddDate(0, 0, 14),
		LineItems:  lines,
	})
	s.Require().NoError(err)
	return inv
}

func (s *InvoiceServiceSuite) approvedTransaction(id string, amount float64) *transaction.Transaction {
	txn := &transaction.Transaction{
		ID:        id,
		ClientID:  s.clientID,
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "USD",
		TxStatus:  types.TransactionStatusApproved,
		DateAdded: time.Now().UTC(),
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().TransactionRepo.Create(s.GetContext(), txn))
	return txn
}

func (s *InvoiceServiceSuite) TestCreateAssignsSequentialNumbers() {
	first := s.createInvoice(10)
	second := s.createInvoice(20)
	third := s.createInvoice(30)

	s.Equal(int64(1), first.Number)
	s.Equal(int64(2), second.Number)
	s.Equal(int64(3), third.Number)
	s.Equal("INV-1", first.DisplayNumber())
}

func (s *InvoiceServiceSuite) TestCreateHonorsNumberingSettings() {
	s.GetSettings().SetCompany("invoice_format", "ACME-{year}-{num}")
	s.GetSettings().SetCompany("invoice_start", "5000")
	s.GetSettings().SetCompany("invoice_increment", "10")

	first := s.createInvoice(10)
	second := s.createInvoice(20)

	s.Equal(int64(5010), first.Number)
	s.Equal(int64(5020), second.Number)
	s.Contains(first.NumberFormat, time.Now().UTC().Format("2006"))
}

func (s *InvoiceServiceSuite) TestCreateRetriesThroughTransientConflicts() {
	s.GetStores().InvoiceStore.InjectConflicts(s.GetConfig().Billing.MaxAddAttempts - 1)

	inv := s.createInvoice(10)
	s.Equal(int64(1), inv.Number)
}

func (s *InvoiceServiceSuite) TestCreateFailsAfterExhaustingRetries() {
	s.GetStores().InvoiceStore.InjectConflicts(s.GetConfig().Billing.MaxAddAttempts)

	_, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		LineItems: []*invoice.LineItem{s.line("Hosting", 10)},
	})
	s.Error(err)
	s.True(errors.Is(err, ierr.ErrDatabase))
}

func (s *InvoiceServiceSuite) TestCreateCarriesPreviousDueForward() {
	s.createInvoice(40)
	inv := s.createInvoice(10)

	s.Equal("40", inv.Metadata["previous_due"])
}

func (s *InvoiceServiceSuite) TestCreateAttachesTaxRulesToTaxableLines() {
	s.GetSettings().SetCompany("tax_enabled", "true")

	country := "US"
	state := "CA"
	s.Require().NoError(s.GetStores().TaxRuleRepo.Create(s.GetContext(), &taxrule.TaxRule{
		ID:        "tax_ca",
		Name:      "CA Sales Tax",
		Amount:    decimal.NewFromInt(8),
		Level:     1,
		Type:      types.TaxRuleTypeExclusive,
		Country:   &country,
		State:     &state,
		TaxStatus: types.TaxRuleStatusActive,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}))

	line := s.line("Hosting", 100)
	line.Taxable = true

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		LineItems: []*invoice.LineItem{line},
	})
	s.Require().NoError(err)

	s.Require().Len(inv.LineItems, 1)
	s.Require().Len(inv.LineItems[0].Taxes, 1)
	s.Equal("tax_ca", inv.LineItems[0].Taxes[0].TaxRuleID)
	s.True(decimal.NewFromInt(100).Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
	s.True(decimal.NewFromInt(108).Equal(inv.Total), "total %s", inv.Total)
}

func (s *InvoiceServiceSuite) TestCreateSkipsTaxesWhenDisabled() {
	country := "US"
	s.Require().NoError(s.GetStores().TaxRuleRepo.Create(s.GetContext(), &taxrule.TaxRule{
		ID:        "tax_us",
		Name:      "Federal",
		Amount:    decimal.NewFromInt(5),
		Level:     1,
		Type:      types.TaxRuleTypeExclusive,
		Country:   &country,
		TaxStatus: types.TaxRuleStatusActive,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}))

	line := s.line("Hosting", 100)
	line.Taxable = true

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		LineItems: []*invoice.LineItem{line},
	})
	s.Require().NoError(err)

	s.Empty(inv.LineItems[0].Taxes)
	s.True(decimal.NewFromInt(100).Equal(inv.Total), "total %s", inv.Total)
}

func (s *InvoiceServiceSuite) TestTotalsIncludeOnlyExclusiveTax() {
	rules := []*taxrule.TaxRule{
		{
			ID:        "tax_vat",
			Name:      "VAT",
			Amount:    decimal.NewFromInt(10),
			Level:     1,
			Type:      types.TaxRuleTypeExclusive,
			TaxStatus: types.TaxRuleStatusActive,
			BaseModel: types.GetDefaultBaseModel(s.GetContext()),
		},
		{
			ID:        "tax_incl",
			Name:      "Included levy",
			Amount:    decimal.NewFromInt(5),
			Level:     2,
			Type:      types.TaxRuleTypeInclusiveCalculated,
			TaxStatus: types.TaxRuleStatusActive,
			BaseModel: types.GetDefaultBaseModel(s.GetContext()),
		},
	}
	for _, rule := range rules {
		s.Require().NoError(s.GetStores().TaxRuleRepo.Create(s.GetContext(), rule))
	}

	line := s.line("Hosting", 100)
	line.Taxable = true
	line.Taxes = []*invoice.LineTax{
		{TaxRuleID: "tax_vat"},
		{TaxRuleID: "tax_incl"},
	}

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		LineItems: []*invoice.LineItem{line},
	})
	s.Require().NoError(err)

	s.True(decimal.NewFromInt(100).Equal(inv.Subtotal), "subtotal %s", inv.Subtotal)
	// 10% exclusive rides on top; the 5% inclusive levy stays inside
	s.True(decimal.NewFromInt(110).Equal(inv.Total), "total %s", inv.Total)
}

func (s *InvoiceServiceSuite) TestSetClosedIsIdempotent() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 100)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(100)))

	first, err := s.invoices.SetClosed(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	second, err := s.invoices.SetClosed(s.GetContext(), inv.ID)
	s.Require().NoError(err)

	s.True(first.Subtotal.Equal(second.Subtotal))
	s.True(first.Total.Equal(second.Total))
	s.True(first.Paid.Equal(second.Paid))
	s.Require().NotNil(first.DateClosed)
	s.Require().NotNil(second.DateClosed)
	s.True(first.DateClosed.Equal(*second.DateClosed))
}

func (s *InvoiceServiceSuite) TestPartialPaymentLeavesInvoiceOpen() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 40)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(40)))

	got, err := s.invoices.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Nil(got.DateClosed)
	s.True(decimal.NewFromInt(60).Equal(got.Due()))
}

func (s *InvoiceServiceSuite) TestEditRejectedAfterPayment() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 40)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(40)))

	_, err := s.invoices.Edit(s.GetContext(), inv.ID, EditInvoiceParams{
		LineItems: []*invoice.LineItem{},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))

	got, err := s.invoices.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Len(got.LineItems, 1)
	s.True(decimal.NewFromInt(100).Equal(got.Total))
}

func (s *InvoiceServiceSuite) TestEditDatesAllowedAfterPayment() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 40)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(40)))

	due := s.GetNow().AddDate(0, 1, 0)
	got, err := s.invoices.Edit(s.GetContext(), inv.ID, EditInvoiceParams{DateDue: &due})
	s.Require().NoError(err)
	s.True(due.Equal(got.DateDue))
}

func (s *InvoiceServiceSuite) TestProformaPromotedOnFullPayment() {
	s.GetSettings().SetCompany("invoice_type", "proforma")

	inv := s.createInvoice(50)
	s.Equal(types.InvoiceStatusProforma, inv.InvoiceStatus)
	s.Equal("PRO-1", inv.DisplayNumber())

	txn := s.approvedTransaction("txn_1", 50)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(50)))

	got, err := s.invoices.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.Equal(types.InvoiceStatusActive, got.InvoiceStatus)
	s.Equal("INV-1", got.DisplayNumber())
	s.NotNil(got.DateClosed)
}

func (s *InvoiceServiceSuite) TestPromotionRequeuesUnsentDeliveries() {
	s.GetSettings().SetCompany("invoice_type", "proforma")

	inv, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		LineItems: []*invoice.LineItem{s.line("Hosting", 50)},
		DeliveryMethods: []types.InvoiceDeliveryMethod{
			types.InvoiceDeliveryMethodEmail,
			types.InvoiceDeliveryMethodPaper,
		},
	})
	s.Require().NoError(err)

	// the email went out while still a proforma; paper is pending
	s.Require().NoError(s.GetStores().InvoiceRepo.MarkDeliverySent(
		s.GetContext(), inv.Deliveries[0].ID, time.Now().UTC()))

	txn := s.approvedTransaction("txn_1", 50)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(50)))

	queued := s.GetSink().Of(notification.KindInvoiceDeliveryQueued)
	s.Require().Len(queued, 1)
	s.Equal(inv.ID, queued[0].Data["invoice_id"])
	s.Equal("paper", queued[0].Data["method"])
}

func (s *InvoiceServiceSuite) TestVoidRejectsInvoiceWithPayments() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 40)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(40)))

	err := s.invoices.Void(s.GetContext(), inv.ID)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestApplyPaymentRejectsOverdraw() {
	inv := s.createInvoice(100)
	txn := s.approvedTransaction("txn_1", 30)

	err := s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(50))
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *InvoiceServiceSuite) TestReapplyPaymentsCapsAtNewTotal() {
	inv := s.createInvoice(100, 50)
	txn := s.approvedTransaction("txn_1", 120)
	s.Require().NoError(s.invoices.ApplyPayment(s.GetContext(), txn.ID, inv.ID, decimal.NewFromInt(120)))

	// strip the larger line, then re-apply against the smaller balance
	got, err := s.invoices.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	var bigLine string
	for _, line := range got.LineItems {
		if line.Amount.Equal(decimal.NewFromInt(100)) {
			bigLine = line.ID
		}
	}
	s.Require().NoError(s.GetStores().InvoiceRepo.RemoveLineItems(s.GetContext(), inv.ID, []string{bigLine}))
	s.Require().NoError(s.invoices.ReapplyPayments(s.GetContext(), inv.ID))

	got, err = s.invoices.Get(s.GetContext(), inv.ID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(50).Equal(got.Total), "total %s", got.Total)
	s.True(decimal.NewFromInt(50).Equal(got.Paid), "paid %s", got.Paid)
	s.NotNil(got.DateClosed)

	refreshed, err := s.GetStores().TransactionRepo.Get(s.GetContext(), txn.ID)
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(70).Equal(refreshed.Available()), "available %s", refreshed.Available())
}

func (s *InvoiceServiceSuite) TestDeleteOnlyDrafts() {
	draft, err := s.invoices.Create(s.GetContext(), CreateInvoiceParams{
		ClientID:  s.clientID,
		Currency:  "USD",
		Status:    types.InvoiceStatusDraft,
		LineItems: []*invoice.LineItem{s.line("Hosting", 10)},
	})
	s.Require().NoError(err)
	s.NoError(s.invoices.Delete(s.GetContext(), draft.ID))

	active := s.createInvoice(10)
	err = s.invoices.Delete(s.GetContext(), active.ID)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
