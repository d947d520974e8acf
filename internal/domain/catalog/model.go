package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Package is a sellable product definition. Module names the provisioning
// module that fulfills services of this package, resolved at runtime through
// the provisioning registry.
type Package struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Module string `db:"module" json:"module"`

	// SingleTerm packages cancel at the end of their first term instead of
	// renewing
	SingleTerm bool `db:"single_term" json:"single_term"`

	// Taxable controls whether service lines priced from this package run
	// through the tax cascade
	Taxable bool `db:"taxable" json:"taxable"`

	Options []*Option `json:"options,omitempty"`
	types.BaseModel
}

// Option is a configurable add-on of a package with its own price per
// billing cycle
type Option struct {
	ID        string          `db:"id" json:"id"`
	PackageID string          `db:"package_id" json:"package_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// Pricing is one term/period price point of a package. The renewal and
// transfer tiers fall back to the base price when unset.
type Pricing struct {
	ID        string `db:"id" json:"id"`
	PackageID string `db:"package_id" json:"package_id"`

	Term   int                 `db:"term" json:"term"`
	Period types.BillingPeriod `db:"period" json:"period"`

	Price         decimal.Decimal  `db:"price" json:"price"`
	PriceRenewal  *decimal.Decimal `db:"price_renewal" json:"price_renewal,omitempty"`
	PriceTransfer *decimal.Decimal `db:"price_transfer" json:"price_transfer,omitempty"`

	SetupFee  decimal.Decimal `db:"setup_fee" json:"setup_fee"`
	CancelFee decimal.Decimal `db:"cancel_fee" json:"cancel_fee"`

	Currency string `db:"currency" json:"currency"`

	// ProrataDay anchors renewals to a day of month; nil disables proration
	ProrataDay *int `db:"prorata_day" json:"prorata_day,omitempty"`
}

// PriceFor resolves the unit price for the given tier
func (p *Pricing) PriceFor(tier types.PriceTier) decimal.Decimal {
	switch tier {
	case types.PriceTierRenewal:
		if p.PriceRenewal != nil {
			return *p.PriceRenewal
		}
	case types.PriceTierTransfer:
		if p.PriceTransfer != nil {
			return *p.PriceTransfer
		}
	}
	return p.Price
}
