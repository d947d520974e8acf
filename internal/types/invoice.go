package types

import (
	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InvoiceStatus represents the current state of an invoice in its lifecycle
type InvoiceStatus string

const (
	// InvoiceStatusDraft indicates the invoice is editable and not yet
	// visible to the client; drafts are the only invoices that may be deleted
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusProforma indicates a provisional invoice awaiting payment
	// before being promoted to active and formally numbered
	InvoiceStatusProforma InvoiceStatus = "proforma"
	// InvoiceStatusActive indicates a formally numbered, payable invoice
	InvoiceStatusActive InvoiceStatus = "active"
	// InvoiceStatusVoid indicates the invoice was voided and no longer
	// carries a balance
	InvoiceStatusVoid InvoiceStatus = "void"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusProforma,
		InvoiceStatusActive,
		InvoiceStatusVoid,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid invoice status").
			WithHint("Please provide a valid invoice status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsOpen reports whether the invoice can still accumulate payments
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusActive || s == InvoiceStatusProforma
}

// InvoiceDeliveryMethod is the channel an invoice is delivered through
type InvoiceDeliveryMethod string

const (
	InvoiceDeliveryMethodEmail InvoiceDeliveryMethod = "email"
	InvoiceDeliveryMethodPaper InvoiceDeliveryMethod = "paper"
)

func (m InvoiceDeliveryMethod) String() string {
	return string(m)
}

func (m InvoiceDeliveryMethod) Validate() error {
	allowed := []InvoiceDeliveryMethod{
		InvoiceDeliveryMethodEmail,
		InvoiceDeliveryMethodPaper,
	}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid invoice delivery method").
			WithHint("Please provide a valid delivery method").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Metadata keys used to stash recurrence parameters on draft invoices so a
// draft can later be promoted to a recurring invoice template.
const (
	MetadataKeyRecurTerm     = "recur_term"
	MetadataKeyRecurPeriod   = "recur_period"
	MetadataKeyRecurDuration = "recur_duration"
	MetadataKeyRecurDate     = "recur_date_renews"
)
