package settings

import (
	"context"
	"strconv"
)

// Setting keys resolved through the provider. Resolution walks client, then
// client group, then company scope; the first value found wins.
const (
	// KeyInvoiceType is "proforma" or "active": the status newly created
	// invoices receive for a client
	KeyInvoiceType = "invoice_type"

	KeyInvoiceFormat    = "invoice_format"
	KeyInvoiceStart     = "invoice_start"
	KeyInvoiceIncrement = "invoice_increment"

	KeyProformaFormat = "proforma_format"
	KeyProformaStart  = "proforma_start"

	KeyServiceCodeFormat = "service_code_format"

	// KeyTaxEnabled turns tax computation on for a company
	KeyTaxEnabled = "tax_enabled"
	// KeyTaxExempt marks a client as tax exempt; inclusive_calculated rules
	// still apply
	KeyTaxExempt = "tax_exempt"

	// KeyInvoiceDaysBefore is the look-ahead window for the recurring
	// scheduler: invoices materialize this many days ahead of the renewal
	KeyInvoiceDaysBefore = "invoice_days_before_renewal"

	// KeyVoidOnCancel controls whether open invoices for only a canceled
	// service's lines are voided outright on cancellation
	KeyVoidOnCancel = "void_invoices_canceled_services"
	// KeyVoidOnCancelGraceDays bounds how far past due an invoice may be
	// and still be voided or stripped on cancellation
	KeyVoidOnCancelGraceDays = "void_invoices_canceled_services_days"

	// KeySynchronizeAddons aligns addon renewal dates to the parent when
	// terms match and neither is prorated
	KeySynchronizeAddons = "synchronize_addons"

	// KeyAutodebitDaysBefore is how many days before due autodebit runs
	KeyAutodebitDaysBefore = "autodebit_days_before_due"
)

// Provider resolves configuration values for a client. An empty clientID
// resolves company scope only.
type Provider interface {
	Get(ctx context.Context, clientID, key string) (string, error)
}

// GetBool resolves a boolean setting, treating missing or malformed values
// as false
func GetBool(ctx context.Context, p Provider, clientID, key string) bool {
	v, err := p.Get(ctx, clientID, key)
	if err != nil {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// GetInt resolves an integer setting, falling back to def when missing or
// malformed
func GetInt(ctx context.Context, p Provider, clientID, key string, def int) int {
	v, err := p.Get(ctx, clientID, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetInt64 resolves an int64 setting, falling back to def when missing or
// malformed
func GetInt64(ctx context.Context, p Provider, clientID, key string, def int64) int64 {
	v, err := p.Get(ctx, clientID, key)
	if err != nil {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetString resolves a string setting, falling back to def when missing
func GetString(ctx context.Context, p Provider, clientID, key string, def string) string {
	v, err := p.Get(ctx, clientID, key)
	if err != nil || v == "" {
		return def
	}
	return v
}
