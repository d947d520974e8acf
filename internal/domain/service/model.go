package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Service represents a subscribed instance of a package pricing. Services
// form a one-level parent/child tree: a child (addon) carries its parent's
// id and can never itself be a parent.
type Service struct {
	ID              string  `db:"id" json:"id"`
	ClientID        string  `db:"client_id" json:"client_id"`
	PackageID       string  `db:"package_id" json:"package_id"`
	PricingID       string  `db:"pricing_id" json:"pricing_id"`
	ParentServiceID *string `db:"parent_service_id" json:"parent_service_id,omitempty"`

	ServiceStatus types.ServiceStatus `db:"service_status" json:"service_status"`

	// Code and CodeFormat form the display identifier, allocated the same
	// way invoice numbers are: one sequence per company and resolved format
	Code       int64  `db:"code" json:"code"`
	CodeFormat string `db:"code_format" json:"code_format"`

	Qty int `db:"qty" json:"qty"`

	// OverridePrice and OverrideCurrency take precedence over the package
	// pricing when set
	OverridePrice    *decimal.Decimal `db:"override_price" json:"override_price,omitempty"`
	OverrideCurrency *string          `db:"override_currency" json:"override_currency,omitempty"`

	CouponID    *string `db:"coupon_id" json:"coupon_id,omitempty"`
	ModuleRowID *string `db:"module_row_id" json:"module_row_id,omitempty"`

	DateAdded       time.Time  `db:"date_added" json:"date_added"`
	DateRenews      time.Time  `db:"date_renews" json:"date_renews"`
	DateLastRenewed *time.Time `db:"date_last_renewed" json:"date_last_renewed,omitempty"`
	DateSuspended   *time.Time `db:"date_suspended" json:"date_suspended,omitempty"`

	// DateCanceled in the future means a scheduled cancellation: the status
	// stays unchanged until the date arrives
	DateCanceled       *time.Time `db:"date_canceled" json:"date_canceled,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	types.BaseModel
}

// CodeFormat describes the service code sequence: a display template plus
// the configured starting value and increment.
type CodeFormat struct {
	Format    string
	Start     int64
	Increment int64
}

// DisplayCode renders the service's display identifier from its stored
// format and numeric value.
func (s *Service) DisplayCode() string {
	return types.RenderNumber(s.CodeFormat, s.Code)
}

// IsCancellationScheduled reports whether a future-dated cancellation is
// pending at the given time
func (s *Service) IsCancellationScheduled(now time.Time) bool {
	return s.ServiceStatus != types.ServiceStatusCanceled &&
		s.DateCanceled != nil &&
		s.DateCanceled.After(now)
}

// CanUncancel reports whether the scheduled cancellation can still be
// withdrawn; once the status has flipped to canceled it cannot
func (s *Service) CanUncancel(now time.Time) bool {
	return s.IsCancellationScheduled(now)
}

func (s *Service) Validate() error {
	if err := s.ServiceStatus.Validate(); err != nil {
		return err
	}
	if s.OverrideCurrency != nil && len(*s.OverrideCurrency) != 3 {
		return NewValidationError("override_currency", "must be a 3-letter code")
	}
	if s.Qty <= 0 {
		return NewValidationError("qty", "must be positive")
	}
	return nil
}

// StateChange records one lifecycle transition of a service. StaffID is
// empty when the transition was triggered by the system or the client, which
// is what qualifies a suspension for automatic unsuspension later.
type StateChange struct {
	ID         string              `db:"id" json:"id"`
	ServiceID  string              `db:"service_id" json:"service_id"`
	FromStatus types.ServiceStatus `db:"from_status" json:"from_status"`
	ToStatus   types.ServiceStatus `db:"to_status" json:"to_status"`
	StaffID    string              `db:"staff_id" json:"staff_id"`
	Reason     string              `db:"reason" json:"reason"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
}

// ServiceInvoice links a renewal invoice to the service it bills. The link
// is consumed once the provisioning module confirms the renewal; until then
// FailedAttempts caps how often the renew notification is retried. At most
// one link exists per (service, invoice) pair.
type ServiceInvoice struct {
	ServiceID      string     `db:"service_id" json:"service_id"`
	InvoiceID      string     `db:"invoice_id" json:"invoice_id"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	ConsumedAt     *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
}
