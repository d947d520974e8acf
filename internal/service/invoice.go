package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/settings"
	"github.com/stackbill/stackbill/internal/domain/taxrule"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/types"
)

// InvoiceService is the invoice ledger: creation with race-safe numbering,
// payment-locked edits, totals/closed-state maintenance and payment
// application.
type InvoiceService interface {
	Create(ctx context.Context, params CreateInvoiceParams) (*invoice.Invoice, error)
	Get(ctx context.Context, id string) (*invoice.Invoice, error)
	Edit(ctx context.Context, id string, params EditInvoiceParams) (*invoice.Invoice, error)

	// SetClosed recomputes totals and paid from source rows, then closes
	// the invoice iff paid >= total and the status is open. A fully paid
	// proforma is promoted to active as part of closing.
	SetClosed(ctx context.Context, id string) (*invoice.Invoice, error)

	Void(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	ApplyPayment(ctx context.Context, transactionID, invoiceID string, amount decimal.Decimal) error
	UnapplyPayment(ctx context.Context, transactionID, invoiceID string) error

	// ReapplyPayments unapplies every payment on the invoice and greedily
	// re-applies them, in original transaction date order, up to the
	// invoice's recomputed balance. Used after cancellation strips lines.
	ReapplyPayments(ctx context.Context, invoiceID string) error
}

// CreateInvoiceParams carries everything InvoiceService.Create needs
type CreateInvoiceParams struct {
	ClientID string
	Currency string

	DateBilled time.Time
	DateDue    time.Time

	// Status overrides the client's configured invoice type when set
	Status types.InvoiceStatus

	LineItems       []*invoice.LineItem
	DeliveryMethods []types.InvoiceDeliveryMethod

	RecurringInvoiceID *string
	Metadata           types.Metadata

	// CouponID accounts one coupon usage once the invoice commits
	CouponID *string
}

// EditInvoiceParams mutates an invoice. Nil fields stay unchanged.
type EditInvoiceParams struct {
	LineItems []*invoice.LineItem
	Currency  *string
	Status    *types.InvoiceStatus

	DateBilled *time.Time
	DateDue    *time.Time

	Metadata types.Metadata
}

type invoiceService struct {
	ServiceParams
	pricing PricingService
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		pricing:       NewPricingService(params),
	}
}

// LinesFromQuote converts a pricing quote into committable invoice lines
// with their tax rule associations.
func LinesFromQuote(quote *Quote) []*invoice.LineItem {
	lines := make([]*invoice.LineItem, 0, len(quote.Lines))
	for i, pl := range quote.Lines {
		line := &invoice.LineItem{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
			ServiceID:   pl.ServiceID,
			Description: pl.Description,
			Quantity:    pl.Quantity,
			Amount:      pl.Amount,
			Order:       i,
			Taxable:     pl.Taxable,
		}
		for _, rule := range pl.TaxRules {
			line.Taxes = append(line.Taxes, &invoice.LineTax{
				TaxRuleID: rule.ID,
				Cascade:   rule.Cascade,
			})
		}
		lines = append(lines, line)
	}
	return lines
}

func (s *invoiceService) Create(ctx context.Context, params CreateInvoiceParams) (*invoice.Invoice, error) {
	if _, err := s.ClientRepo.Get(ctx, params.ClientID); err != nil {
		return nil, err
	}
	if len(params.LineItems) == 0 {
		return nil, ValidationErrorf("line_items", "at least one line item is required")
	}

	status := params.Status
	if status == "" {
		status = types.InvoiceStatus(settings.GetString(ctx, s.Settings, params.ClientID,
			settings.KeyInvoiceType, string(types.InvoiceStatusActive)))
	}
	if err := status.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dateBilled := params.DateBilled
	if dateBilled.IsZero() {
		dateBilled = now
	}
	dateDue := params.DateDue
	if dateDue.IsZero() {
		dateDue = dateBilled
	}

	inv := &invoice.Invoice{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		ClientID:           params.ClientID,
		InvoiceStatus:      status,
		Currency:           params.Currency,
		DateBilled:         dateBilled,
		DateDue:            dateDue,
		RecurringInvoiceID: params.RecurringInvoiceID,
		Metadata:           params.Metadata,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}

	for i, line := range params.LineItems {
		if line.ID == "" {
			line.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM)
		}
		line.Order = i
		line.BaseModel = types.GetDefaultBaseModel(ctx)
		inv.LineItems = append(inv.LineItems, line)
	}

	for _, method := range params.DeliveryMethods {
		if err := method.Validate(); err != nil {
			return nil, err
		}
		inv.Deliveries = append(inv.Deliveries, &invoice.Delivery{
			ID:     types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_DELIVERY),
			Method: method,
		})
	}

	if err := s.attachTaxes(ctx, params.ClientID, inv.LineItems); err != nil {
		return nil, err
	}

	// carry the client's outstanding balance forward for display
	previousDue, err := s.previousDue(ctx, params.ClientID)
	if err != nil {
		return nil, err
	}
	if previousDue.IsPositive() {
		if inv.Metadata == nil {
			inv.Metadata = types.Metadata{}
		}
		inv.Metadata["previous_due"] = previousDue.String()
	}

	inv.Subtotal, inv.Total, err = s.lineTotals(ctx, inv.LineItems)
	if err != nil {
		return nil, err
	}
	inv.Paid = decimal.Zero

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	format := s.numberFormat(ctx, params.ClientID, status)

	err = s.DB.WithTxRetry(ctx, s.Config.Billing.MaxAddAttempts, func(ctx context.Context) error {
		return s.InvoiceRepo.CreateWithNumber(ctx, inv, format)
	})
	if err != nil {
		if ierr.IsTransactionConflict(err) {
			return nil, ierr.WithError(err).
				WithHint("could not allocate an invoice number").
				WithReportableDetails(map[string]any{"invoice_add": "failed"}).
				Mark(ierr.ErrDatabase)
		}
		return nil, err
	}

	if params.CouponID != nil {
		if err := s.CouponRepo.IncrementUsage(ctx, *params.CouponID); err != nil {
			s.Logger.Warnw("coupon usage accounting failed",
				"coupon_id", *params.CouponID, "error", err)
		}
	}

	out, err := s.SetClosed(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	if err := s.Sink.Dispatch(ctx, notification.Notice{
		Kind:     notification.KindInvoiceCreated,
		ClientID: inv.ClientID,
		Data:     map[string]string{"invoice_id": inv.ID, "number": out.DisplayNumber()},
	}); err != nil {
		s.Logger.Warnw("invoice creation notice failed", "invoice_id", inv.ID, "error", err)
	}

	return out, nil
}

// attachTaxes resolves the client's tax rules and associates them with
// taxable lines that do not already carry an association. Lines priced
// through a quote arrive with their rules attached and are left alone.
func (s *invoiceService) attachTaxes(ctx context.Context, clientID string, lines []*invoice.LineItem) error {
	if !settings.GetBool(ctx, s.Settings, clientID, settings.KeyTaxEnabled) {
		return nil
	}

	pending := false
	for _, line := range lines {
		if line.Taxable && len(line.Taxes) == 0 {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	rules, err := s.pricing.ResolveTaxRules(ctx, clientID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	for _, line := range lines {
		if !line.Taxable || len(line.Taxes) > 0 {
			continue
		}
		for _, rule := range rules {
			line.Taxes = append(line.Taxes, &invoice.LineTax{
				LineItemID: line.ID,
				TaxRuleID:  rule.ID,
				Cascade:    rule.Cascade,
			})
		}
	}
	return nil
}

func (s *invoiceService) previousDue(ctx context.Context, clientID string) (decimal.Decimal, error) {
	open, err := s.InvoiceRepo.ListOpenByClient(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}

	due := decimal.Zero
	for _, inv := range open {
		if inv.Due().IsPositive() {
			due = due.Add(inv.Due())
		}
	}
	return due, nil
}

// numberFormat resolves the active numbering template for the status:
// proforma invoices run their own sequence until promotion.
func (s *invoiceService) numberFormat(ctx context.Context, clientID string, status types.InvoiceStatus) invoice.NumberFormat {
	if status == types.InvoiceStatusProforma {
		return invoice.NumberFormat{
			Format:    settings.GetString(ctx, s.Settings, clientID, settings.KeyProformaFormat, "PRO-{num}"),
			Start:     settings.GetInt64(ctx, s.Settings, clientID, settings.KeyProformaStart, 0),
			Increment: 1,
		}
	}
	return invoice.NumberFormat{
		Format:    settings.GetString(ctx, s.Settings, clientID, settings.KeyInvoiceFormat, "INV-{num}"),
		Start:     settings.GetInt64(ctx, s.Settings, clientID, settings.KeyInvoiceStart, 0),
		Increment: settings.GetInt64(ctx, s.Settings, clientID, settings.KeyInvoiceIncrement, 1),
	}
}

func (s *invoiceService) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	return s.InvoiceRepo.Get(ctx, id)
}

func (s *invoiceService) Edit(ctx context.Context, id string, params EditInvoiceParams) (*invoice.Invoice, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	touchesLocked := params.LineItems != nil || params.Currency != nil || params.Status != nil
	if touchesLocked && inv.HasPayments() {
		return nil, ierr.WithError(invoice.ErrLinesLocked).
			WithHint("line items, currency and status are locked once a payment is applied").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrValidation)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if params.LineItems != nil {
			if err := s.applyLineEdits(ctx, inv, params.LineItems); err != nil {
				return err
			}
		}

		if params.Currency != nil {
			inv.Currency = *params.Currency
		}
		if params.DateBilled != nil {
			inv.DateBilled = *params.DateBilled
		}
		if params.DateDue != nil {
			inv.DateDue = *params.DateDue
		}
		if params.Metadata != nil {
			inv.Metadata = params.Metadata
		}

		if params.Status != nil && *params.Status != inv.InvoiceStatus {
			if err := (*params.Status).Validate(); err != nil {
				return err
			}
			if inv.InvoiceStatus == types.InvoiceStatusProforma &&
				*params.Status == types.InvoiceStatusActive {
				if err := s.promote(ctx, inv); err != nil {
					return err
				}
			}
			inv.InvoiceStatus = *params.Status
		}

		if err := inv.Validate(); err != nil {
			return err
		}
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	return s.SetClosed(ctx, id)
}

// applyLineEdits diffs the requested lines against the persisted ones,
// re-resolving tax rules only when quantity, unit amount or the taxable flag
// actually changed. Reordering or rewording lines keeps the existing tax
// associations.
func (s *invoiceService) applyLineEdits(ctx context.Context, inv *invoice.Invoice, updated []*invoice.LineItem) error {
	recompute := invoice.RequiresTaxRecompute(inv.LineItems, updated)

	var rules []*taxrule.TaxRule
	if recompute && settings.GetBool(ctx, s.Settings, inv.ClientID, settings.KeyTaxEnabled) {
		resolved, err := s.pricing.ResolveTaxRules(ctx, inv.ClientID)
		if err != nil {
			return err
		}
		rules = resolved
	}

	keep := make(map[string]bool, len(updated))
	for i, line := range updated {
		if line.ID == "" {
			line.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM)
		}
		line.InvoiceID = inv.ID
		line.Order = i
		if line.CompanyID == "" {
			line.BaseModel = types.GetDefaultBaseModel(ctx)
		}
		keep[line.ID] = true

		if recompute {
			line.Taxes = nil
			if line.Taxable {
				for _, rule := range rules {
					line.Taxes = append(line.Taxes, &invoice.LineTax{
						LineItemID: line.ID,
						TaxRuleID:  rule.ID,
						Cascade:    rule.Cascade,
					})
				}
			}
		}
	}

	var removed []string
	for _, old := range inv.LineItems {
		if !keep[old.ID] {
			removed = append(removed, old.ID)
		}
	}

	if len(removed) > 0 {
		if err := s.InvoiceRepo.RemoveLineItems(ctx, inv.ID, removed); err != nil {
			return err
		}
	}
	if err := s.InvoiceRepo.AddLineItems(ctx, inv.ID, updated); err != nil {
		return err
	}

	inv.LineItems = updated
	return nil
}

// promote renumbers a proforma under the active format and re-queues every
// delivery method that has not gone out yet, so pending deliveries carry the
// final number. Already-sent methods are not re-dispatched.
func (s *invoiceService) promote(ctx context.Context, inv *invoice.Invoice) error {
	format := s.numberFormat(ctx, inv.ClientID, types.InvoiceStatusActive)
	if err := s.InvoiceRepo.Renumber(ctx, inv.ID, format); err != nil {
		return err
	}

	for _, d := range inv.Deliveries {
		if d.DateSent != nil {
			continue
		}
		if err := s.Sink.Dispatch(ctx, notification.Notice{
			Kind:     notification.KindInvoiceDeliveryQueued,
			ClientID: inv.ClientID,
			Data:     map[string]string{"invoice_id": inv.ID, "method": string(d.Method)},
		}); err != nil {
			s.Logger.Warnw("delivery re-queue notice failed",
				"invoice_id", inv.ID, "method", d.Method, "error", err)
		}
	}

	s.Logger.Infow("promoted proforma invoice",
		"invoice_id", inv.ID,
		"number_format", format.Format,
	)
	return nil
}

func (s *invoiceService) SetClosed(ctx context.Context, id string) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.InvoiceRepo.Get(ctx, id)
		if err != nil {
			return err
		}

		inv.Subtotal, inv.Total, err = s.lineTotals(ctx, inv.LineItems)
		if err != nil {
			return err
		}

		apps, err := s.TransactionRepo.ListApplicationsByInvoice(ctx, id)
		if err != nil {
			return err
		}
		paid := decimal.Zero
		for _, app := range apps {
			paid = paid.Add(app.Amount)
		}
		inv.Paid = paid

		fullyPaid := inv.Paid.GreaterThanOrEqual(inv.Total)

		if fullyPaid && inv.InvoiceStatus == types.InvoiceStatusProforma {
			if err := s.promote(ctx, inv); err != nil {
				return err
			}
			inv.InvoiceStatus = types.InvoiceStatusActive
		}

		if fullyPaid && inv.InvoiceStatus.IsOpen() {
			if inv.DateClosed == nil {
				now := time.Now().UTC()
				inv.DateClosed = &now
			}
		} else {
			inv.DateClosed = nil
		}

		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lineTotals computes the invoice subtotal and total from its lines and
// their persisted tax associations. Inclusive tax rides inside the
// advertised amounts, so only the exclusive portion is added on top.
func (s *invoiceService) lineTotals(ctx context.Context, lines []*invoice.LineItem) (decimal.Decimal, decimal.Decimal, error) {
	subtotal := decimal.Zero
	total := decimal.Zero

	var ruleIDs []string
	seen := make(map[string]bool)
	for _, line := range lines {
		for _, tax := range line.Taxes {
			if !seen[tax.TaxRuleID] {
				seen[tax.TaxRuleID] = true
				ruleIDs = append(ruleIDs, tax.TaxRuleID)
			}
		}
	}

	rulesByID := make(map[string]*taxrule.TaxRule)
	if len(ruleIDs) > 0 {
		rules, err := s.TaxRuleRepo.GetByIDs(ctx, ruleIDs)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		for _, rule := range rules {
			rulesByID[rule.ID] = rule
		}
	}

	for _, line := range lines {
		sub := line.Subtotal()
		subtotal = subtotal.Add(sub)
		total = total.Add(sub)

		if len(line.Taxes) == 0 {
			continue
		}

		var lineRules []*taxrule.TaxRule
		for _, tax := range line.Taxes {
			if rule, ok := rulesByID[tax.TaxRuleID]; ok {
				lineRules = append(lineRules, rule)
			}
		}
		breakdown := taxrule.Calculate(lineRules, sub, false)
		total = total.Add(breakdown.TotalTax.Sub(breakdown.InclusiveAmount))
	}

	return subtotal.Round(2), total.Round(2), nil
}

func (s *invoiceService) Void(ctx context.Context, id string) error {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	if inv.HasPayments() {
		return ierr.NewError("invoice has applied payments").
			WithHint("unapply payments before voiding").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrValidation)
	}

	inv.InvoiceStatus = types.InvoiceStatusVoid
	inv.DateClosed = nil
	return s.InvoiceRepo.Update(ctx, inv)
}

func (s *invoiceService) Delete(ctx context.Context, id string) error {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	if inv.InvoiceStatus != types.InvoiceStatusDraft {
		return ierr.WithError(invoice.ErrNotDraft).
			WithHint("only draft invoices can be deleted").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrValidation)
	}

	return s.InvoiceRepo.Delete(ctx, id)
}

func (s *invoiceService) ApplyPayment(ctx context.Context, transactionID, invoiceID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ValidationErrorf("amount", "applied amount must be positive")
	}

	txn, err := s.TransactionRepo.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.TxStatus != types.TransactionStatusApproved {
		return ValidationErrorf("transaction_id", "only approved transactions can be applied")
	}
	if txn.Available().LessThan(amount) {
		return ValidationErrorf("amount", "amount exceeds the transaction's available balance")
	}

	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return err
	}
	if !inv.InvoiceStatus.IsOpen() {
		return ValidationErrorf("invoice_id", "payments only apply to active or proforma invoices")
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.TransactionRepo.Apply(ctx, transactionID, invoiceID, amount)
	})
	if err != nil {
		return err
	}

	_, err = s.SetClosed(ctx, invoiceID)
	return err
}

func (s *invoiceService) UnapplyPayment(ctx context.Context, transactionID, invoiceID string) error {
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.TransactionRepo.Unapply(ctx, transactionID, invoiceID)
	})
	if err != nil {
		return err
	}

	_, err = s.SetClosed(ctx, invoiceID)
	return err
}

func (s *invoiceService) ReapplyPayments(ctx context.Context, invoiceID string) error {
	apps, err := s.TransactionRepo.ListApplicationsByInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}

	for _, app := range apps {
		if err := s.TransactionRepo.Unapply(ctx, app.TransactionID, invoiceID); err != nil {
			return err
		}
	}

	inv, err := s.SetClosed(ctx, invoiceID)
	if err != nil {
		return err
	}

	remaining := inv.Due()
	for _, app := range apps {
		if !remaining.IsPositive() {
			break
		}
		amount := app.Amount
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
		if err := s.TransactionRepo.Apply(ctx, app.TransactionID, invoiceID, amount); err != nil {
			return err
		}
		remaining = remaining.Sub(amount)
	}

	_, err = s.SetClosed(ctx, invoiceID)
	return err
}
