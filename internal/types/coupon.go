package types

import (
	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// CouponType determines the discount math a coupon applies
type CouponType string

const (
	// CouponTypePercent discounts a percentage of the discountable subtotal
	CouponTypePercent CouponType = "percent"
	// CouponTypeAmount discounts a flat amount in the coupon's currency
	CouponTypeAmount CouponType = "amount"
)

func (t CouponType) String() string {
	return string(t)
}

func (t CouponType) Validate() error {
	allowed := []CouponType{
		CouponTypePercent,
		CouponTypeAmount,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid coupon type").
			WithHint("Please provide a valid coupon type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PriceTier selects which package price applies to a pricing computation
type PriceTier string

const (
	PriceTierNew      PriceTier = "new"
	PriceTierRenewal  PriceTier = "renewal"
	PriceTierTransfer PriceTier = "transfer"
)

func (t PriceTier) Validate() error {
	allowed := []PriceTier{
		PriceTierNew,
		PriceTierRenewal,
		PriceTierTransfer,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid price tier").
			WithHint("Please provide a valid price tier").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
