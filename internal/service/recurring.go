package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/recurring"
	"github.com/stackbill/stackbill/internal/domain/settings"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// RecurringService materializes recurring invoice templates into concrete
// invoices, one per billing cycle, with a catch-up loop for missed cycles.
type RecurringService interface {
	Create(ctx context.Context, template *recurring.RecurringInvoice) (*recurring.RecurringInvoice, error)
	Get(ctx context.Context, id string) (*recurring.RecurringInvoice, error)
	Delete(ctx context.Context, id string) error

	// Run processes every template due for renewal. Templates run in
	// parallel; each template's catch-up loop is strictly sequential.
	Run(ctx context.Context, asOf time.Time) error

	// ProcessTemplate runs the catch-up loop for one template and returns
	// how many invoices it produced
	ProcessTemplate(ctx context.Context, id string, asOf time.Time) (int, error)

	// PromoteDraft turns a draft invoice carrying recurrence metadata into
	// a recurring template
	PromoteDraft(ctx context.Context, invoiceID string) (*recurring.RecurringInvoice, error)
}

type recurringService struct {
	ServiceParams
	invoices InvoiceService
}

// NewRecurringService creates a new recurring invoice service
func NewRecurringService(params ServiceParams) RecurringService {
	return &recurringService{
		ServiceParams: params,
		invoices:      NewInvoiceService(params),
	}
}

func (s *recurringService) Create(ctx context.Context, template *recurring.RecurringInvoice) (*recurring.RecurringInvoice, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}

	if template.ID == "" {
		template.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RECURRING_INVOICE)
	}
	template.BaseModel = types.GetDefaultBaseModel(ctx)
	for _, line := range template.LineItems {
		if line.ID == "" {
			line.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM)
		}
		line.RecurringInvoiceID = template.ID
	}

	if err := s.RecurringRepo.Create(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

func (s *recurringService) Get(ctx context.Context, id string) (*recurring.RecurringInvoice, error) {
	return s.RecurringRepo.Get(ctx, id)
}

func (s *recurringService) Delete(ctx context.Context, id string) error {
	// templates go away independently of the invoices they produced
	return s.RecurringRepo.Delete(ctx, id)
}

func (s *recurringService) Run(ctx context.Context, asOf time.Time) error {
	maxAhead := s.lookAheadDays(ctx, "")

	templates, err := s.RecurringRepo.ListRenewable(ctx, asOf, maxAhead)
	if err != nil {
		return err
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, template := range templates {
		template := template
		p.Go(func(ctx context.Context) error {
			// the sweep crosses companies; scope each template to its own
			ctx = types.SetCompanyID(ctx, template.CompanyID)

			created, perr := s.ProcessTemplate(ctx, template.ID, asOf)
			if perr != nil {
				s.Logger.Errorw("recurring template processing failed",
					"recurring_invoice_id", template.ID,
					"invoices_created", created,
					"error", perr,
				)
				return perr
			}
			return nil
		})
	}
	return p.Wait()
}

func (s *recurringService) lookAheadDays(ctx context.Context, clientID string) int {
	return settings.GetInt(ctx, s.Settings, clientID,
		settings.KeyInvoiceDaysBefore, s.Config.Billing.InvoiceDaysBefore)
}

// ProcessTemplate catches a template up: while the template may still
// produce invoices and its invoice-ahead date has arrived, it generates
// exactly one invoice per missed cycle and advances date_renews by one term
// each iteration. The loop stops on the first creation failure so a failed
// cycle's renewal date is never advanced.
func (s *recurringService) ProcessTemplate(ctx context.Context, id string, asOf time.Time) (int, error) {
	template, err := s.RecurringRepo.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	produced, err := s.InvoiceRepo.CountByRecurring(ctx, template.ID)
	if err != nil {
		return 0, err
	}

	aheadDays := s.lookAheadDays(ctx, template.ClientID)
	created := 0

	for template.Renewable(produced) {
		aheadDate := template.DateRenews.AddDate(0, 0, -aheadDays)
		if aheadDate.After(asOf) {
			break
		}

		cycleStart := template.DateRenews
		cycleEnd, nerr := types.NextRenewDate(cycleStart, template.Term, template.Period)
		if nerr != nil {
			return created, nerr
		}

		if _, err := s.materialize(ctx, template, cycleStart, cycleEnd, asOf); err != nil {
			return created, err
		}

		template.DateLastRenewed = &cycleStart
		template.DateRenews = cycleEnd
		if err := s.RecurringRepo.Update(ctx, template); err != nil {
			return created, err
		}

		produced++
		created++
	}

	return created, nil
}

// materialize copies the template lines onto one concrete invoice covering
// the given cycle. A cycle already in the past is due immediately.
func (s *recurringService) materialize(ctx context.Context, template *recurring.RecurringInvoice, cycleStart, cycleEnd, asOf time.Time) (*invoice.Invoice, error) {
	dateDue := cycleStart
	if cycleStart.Before(asOf) {
		dateDue = asOf
	}

	lines := make([]*invoice.LineItem, 0, len(template.LineItems))
	for _, tl := range template.LineItems {
		lines = append(lines, &invoice.LineItem{
			Description: fmt.Sprintf("%s (%s - %s)", tl.Description,
				cycleStart.Format("2006-01-02"), cycleEnd.Format("2006-01-02")),
			Quantity: tl.Quantity,
			Amount:   tl.Amount,
			Taxable:  tl.Taxable,
		})
	}

	return s.invoices.Create(ctx, CreateInvoiceParams{
		ClientID:           template.ClientID,
		Currency:           template.Currency,
		DateBilled:         asOf,
		DateDue:            dateDue,
		LineItems:          lines,
		RecurringInvoiceID: &template.ID,
	})
}

func (s *recurringService) PromoteDraft(ctx context.Context, invoiceID string) (*recurring.RecurringInvoice, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus != types.InvoiceStatusDraft {
		return nil, ValidationErrorf("invoice_id", "only draft invoices can be promoted to a recurring template")
	}

	termRaw, ok := inv.Metadata[types.MetadataKeyRecurTerm]
	if !ok {
		return nil, ValidationErrorf("metadata", "draft carries no recurrence parameters")
	}
	term, err := strconv.Atoi(termRaw)
	if err != nil {
		return nil, ValidationErrorf("metadata", "invalid recurrence term %q", termRaw)
	}

	period := types.BillingPeriod(inv.Metadata[types.MetadataKeyRecurPeriod])
	if perr := period.Validate(); perr != nil {
		return nil, perr
	}

	dateRenews := inv.DateDue
	if raw, ok := inv.Metadata[types.MetadataKeyRecurDate]; ok {
		parsed, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, ValidationErrorf("metadata", "invalid recurrence date %q", raw)
		}
		dateRenews = parsed
	}

	var duration *int
	if raw, ok := inv.Metadata[types.MetadataKeyRecurDuration]; ok {
		d, perr := strconv.Atoi(raw)
		if perr != nil || d <= 0 {
			return nil, ValidationErrorf("metadata", "invalid recurrence duration %q", raw)
		}
		duration = &d
	}

	template := &recurring.RecurringInvoice{
		ClientID:   inv.ClientID,
		Term:       term,
		Period:     period,
		Duration:   duration,
		DateRenews: dateRenews,
		Currency:   inv.Currency,
	}
	for _, li := range inv.LineItems {
		template.LineItems = append(template.LineItems, &recurring.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			Amount:      li.Amount,
			Order:       li.Order,
			Taxable:     li.Taxable,
		})
	}

	out, err := s.Create(ctx, template)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("draft promotion failed").
			WithReportableDetails(map[string]any{"invoice_id": invoiceID}).
			Mark(ierr.ErrInvalidOperation)
	}
	return out, nil
}
