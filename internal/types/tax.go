package types

import (
	"github.com/samber/lo"
	ierr "github.com/stackbill/stackbill/internal/errors"
)

// TaxRuleType determines how a tax rule relates to the advertised price
type TaxRuleType string

const (
	// TaxRuleTypeInclusive taxes are already inside the advertised price and
	// are broken out for display
	TaxRuleTypeInclusive TaxRuleType = "inclusive"
	// TaxRuleTypeExclusive taxes are added on top of the advertised price
	TaxRuleTypeExclusive TaxRuleType = "exclusive"
	// TaxRuleTypeInclusiveCalculated taxes are baked into the advertised
	// price at calculation time; they apply even to tax-exempt clients
	TaxRuleTypeInclusiveCalculated TaxRuleType = "inclusive_calculated"
)

func (t TaxRuleType) String() string {
	return string(t)
}

func (t TaxRuleType) Validate() error {
	allowed := []TaxRuleType{
		TaxRuleTypeInclusive,
		TaxRuleTypeExclusive,
		TaxRuleTypeInclusiveCalculated,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid tax rule type").
			WithHint("Please provide a valid tax rule type").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsInclusive reports whether the rule's amount is part of the advertised
// price rather than added on top of it
func (t TaxRuleType) IsInclusive() bool {
	return t == TaxRuleTypeInclusive || t == TaxRuleTypeInclusiveCalculated
}

// TaxRuleStatus is the activation state of a tax rule
type TaxRuleStatus string

const (
	TaxRuleStatusActive   TaxRuleStatus = "active"
	TaxRuleStatusInactive TaxRuleStatus = "inactive"
)

func (s TaxRuleStatus) Validate() error {
	allowed := []TaxRuleStatus{
		TaxRuleStatusActive,
		TaxRuleStatusInactive,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid tax rule status").
			WithHint("Please provide a valid tax rule status").
			WithReportableDetails(map[string]any{
				"allowed": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
