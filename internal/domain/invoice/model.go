package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Invoice represents the invoice domain model. Monetary fields are stored at
// the owning currency's decimal precision. Total always equals the sum of
// line subtotals plus their taxes; Paid equals the sum of applied approved
// transaction amounts; DateClosed is set iff Paid >= Total and the status is
// active or proforma.
type Invoice struct {
	ID            string              `db:"id" json:"id"`
	ClientID      string              `db:"client_id" json:"client_id"`
	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`

	// Number is the sequential numeric value issued by the document number
	// allocator; NumberFormat is the template it is displayed through.
	Number       int64  `db:"number" json:"number"`
	NumberFormat string `db:"number_format" json:"number_format"`

	Subtotal decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total    decimal.Decimal `db:"total" json:"total"`
	Paid     decimal.Decimal `db:"paid" json:"paid"`

	DateBilled time.Time  `db:"date_billed" json:"date_billed"`
	DateDue    time.Time  `db:"date_due" json:"date_due"`
	DateClosed *time.Time `db:"date_closed" json:"date_closed,omitempty"`

	Currency string `db:"currency" json:"currency"`

	// RecurringInvoiceID links an invoice materialized by the scheduler back
	// to its template
	RecurringInvoiceID *string `db:"recurring_invoice_id" json:"recurring_invoice_id,omitempty"`

	Metadata   types.Metadata `db:"metadata" json:"metadata,omitempty"`
	LineItems  []*LineItem    `json:"line_items,omitempty"`
	Deliveries []*Delivery    `json:"deliveries,omitempty"`
	types.BaseModel
}

// LineItem is one priced row of an invoice. ServiceID is optional; lines not
// bound to a service (fees, adjustments, recurring template copies) leave it
// nil. Order is the display position.
type LineItem struct {
	ID          string          `db:"id" json:"id"`
	InvoiceID   string          `db:"invoice_id" json:"invoice_id"`
	ServiceID   *string         `db:"service_id" json:"service_id,omitempty"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Amount      decimal.Decimal `db:"amount" json:"amount"` // unit amount
	Order       int             `db:"sort_order" json:"order"`
	Taxable     bool            `db:"taxable" json:"taxable"`
	Taxes       []*LineTax      `json:"taxes,omitempty"`
	types.BaseModel
}

// Subtotal is the line's quantity times unit amount at currency precision
func (li *LineItem) Subtotal() decimal.Decimal {
	return li.Quantity.Mul(li.Amount).Round(2)
}

// LineTax associates a tax rule with a line item
type LineTax struct {
	LineItemID string `db:"line_item_id" json:"line_item_id"`
	TaxRuleID  string `db:"tax_rule_id" json:"tax_rule_id"`
	Cascade    bool   `db:"cascade" json:"cascade"`
	// Subtract marks taxes withheld from the advertised amount rather than
	// added to it; carried through from the rule at association time
	Subtract bool `db:"subtract" json:"subtract"`
}

// Delivery is a scheduled or completed delivery of the invoice through one
// method. DateSent is nil until the dispatch completes.
type Delivery struct {
	ID        string                      `db:"id" json:"id"`
	InvoiceID string                      `db:"invoice_id" json:"invoice_id"`
	Method    types.InvoiceDeliveryMethod `db:"method" json:"method"`
	DateSent  *time.Time                  `db:"date_sent" json:"date_sent,omitempty"`
}

// Due returns the outstanding balance
func (i *Invoice) Due() decimal.Decimal {
	return i.Total.Sub(i.Paid)
}

// IsClosed reports whether the invoice has been fully paid and closed
func (i *Invoice) IsClosed() bool {
	return i.DateClosed != nil
}

// HasPayments reports whether any transaction amount has been applied. Line
// items, currency and status are locked once this is true.
func (i *Invoice) HasPayments() bool {
	return i.Paid.GreaterThan(decimal.Zero)
}

// ServiceLineItems returns the invoice's lines bound to the given service
func (i *Invoice) ServiceLineItems(serviceID string) []*LineItem {
	var out []*LineItem
	for _, li := range i.LineItems {
		if li.ServiceID != nil && *li.ServiceID == serviceID {
			out = append(out, li)
		}
	}
	return out
}

func (i *Invoice) Validate() error {
	if i.ClientID == "" {
		return NewValidationError("client_id", "must be set")
	}

	if len(i.Currency) != 3 {
		return NewValidationError("currency", "must be a 3-letter code")
	}

	if i.Subtotal.IsNegative() {
		return NewValidationError("subtotal", "must be non negative")
	}

	if i.Total.IsNegative() {
		return NewValidationError("total", "must be non negative")
	}

	if i.Paid.IsNegative() {
		return NewValidationError("paid", "must be non negative")
	}

	if i.DateDue.Before(i.DateBilled) {
		return NewValidationError("date_due", "must be on or after date_billed")
	}

	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}

	for _, item := range i.LineItems {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (li *LineItem) Validate() error {
	if li.Description == "" {
		return NewValidationError("line_items.description", "must be set")
	}
	if li.Quantity.LessThanOrEqual(decimal.Zero) {
		return NewValidationError("line_items.quantity", "must be positive")
	}
	return nil
}

// RequiresTaxRecompute diffs persisted line items against their edited
// versions and reports whether the applicable tax rules must be resolved
// again. Only count, unit amount, quantity and the taxable flag participate;
// reordering lines or editing descriptions never invalidates already-correct
// tax associations.
func RequiresTaxRecompute(old, updated []*LineItem) bool {
	if len(old) != len(updated) {
		return true
	}

	byID := make(map[string]*LineItem, len(old))
	for _, li := range old {
		byID[li.ID] = li
	}

	for _, li := range updated {
		prev, ok := byID[li.ID]
		if !ok {
			return true
		}
		if !prev.Amount.Equal(li.Amount) ||
			!prev.Quantity.Equal(li.Quantity) ||
			prev.Taxable != li.Taxable {
			return true
		}
	}

	return false
}
