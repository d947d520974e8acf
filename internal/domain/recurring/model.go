package recurring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// RecurringInvoice is a template that the scheduler materializes into
// concrete invoices, one per billing cycle. Duration caps how many invoices
// the template may ever produce; nil means infinite. The count of invoices
// already produced is derived from the created-invoices join, never stored.
type RecurringInvoice struct {
	ID       string `db:"id" json:"id"`
	ClientID string `db:"client_id" json:"client_id"`

	Term   int                 `db:"term" json:"term"`
	Period types.BillingPeriod `db:"period" json:"period"`

	Duration *int `db:"duration" json:"duration,omitempty"`

	DateRenews      time.Time  `db:"date_renews" json:"date_renews"`
	DateLastRenewed *time.Time `db:"date_last_renewed" json:"date_last_renewed,omitempty"`

	Currency string `db:"currency" json:"currency"`

	LineItems []*LineItem `json:"line_items,omitempty"`
	types.BaseModel
}

// LineItem is a template line copied onto every generated invoice. No
// service binding is required.
type LineItem struct {
	ID                 string          `db:"id" json:"id"`
	RecurringInvoiceID string          `db:"recurring_invoice_id" json:"recurring_invoice_id"`
	Description        string          `db:"description" json:"description"`
	Quantity           decimal.Decimal `db:"quantity" json:"quantity"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Order              int             `db:"sort_order" json:"order"`
	Taxable            bool            `db:"taxable" json:"taxable"`
}

// Renewable reports whether the template may still produce an invoice given
// how many it has already produced
func (r *RecurringInvoice) Renewable(produced int) bool {
	if r.Duration == nil {
		return true
	}
	return produced < *r.Duration
}

func (r *RecurringInvoice) Validate() error {
	if r.ClientID == "" {
		return NewValidationError("client_id", "must be set")
	}
	if r.Term <= 0 {
		return NewValidationError("term", "must be positive")
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if len(r.Currency) != 3 {
		return NewValidationError("currency", "must be a 3-letter code")
	}
	if r.Duration != nil && *r.Duration <= 0 {
		return NewValidationError("duration", "must be positive when set")
	}
	if len(r.LineItems) == 0 {
		return NewValidationError("line_items", "at least one line item is required")
	}
	return nil
}
