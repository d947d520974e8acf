package coupon

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Coupon is a discount applied during pricing. Eligibility is restricted by
// package, by term, by a usage cap and by a date window against the pricing
// apply date.
type Coupon struct {
	ID   string           `db:"id" json:"id"`
	Code string           `db:"code" json:"code"`
	Type types.CouponType `db:"type" json:"type"`

	// Amount is a percentage for percent coupons and a flat amount in
	// Currency for amount coupons
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency string          `db:"currency" json:"currency"`

	MaxUses *int `db:"max_uses" json:"max_uses,omitempty"`
	Uses    int  `db:"uses" json:"uses"`

	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`

	// PackageIDs and Terms limit eligibility; empty means unrestricted
	PackageIDs []string `json:"package_ids,omitempty"`
	Terms      []int    `json:"terms,omitempty"`

	types.BaseModel
}

// Eligible reports whether the coupon applies to the given package and term
// at the apply date, honoring the usage cap and date window.
func (c *Coupon) Eligible(packageID string, term int, applyDate time.Time) bool {
	if c.MaxUses != nil && c.Uses >= *c.MaxUses {
		return false
	}
	if c.StartDate != nil && applyDate.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && applyDate.After(*c.EndDate) {
		return false
	}
	if len(c.PackageIDs) > 0 && !lo.Contains(c.PackageIDs, packageID) {
		return false
	}
	if len(c.Terms) > 0 && !lo.Contains(c.Terms, term) {
		return false
	}
	return true
}

// Discount returns the discount amount for the given discountable subtotal,
// choosing between percentage and flat-amount math. The result never exceeds
// the subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case types.CouponTypePercent:
		d = subtotal.Mul(c.Amount).Div(decimal.NewFromInt(100)).Round(2)
	case types.CouponTypeAmount:
		d = c.Amount
	default:
		return decimal.Zero
	}

	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
