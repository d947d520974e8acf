package taxrule

import (
	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// TaxRule represents a percentage tax applied to taxable invoice line items.
// Rules are scoped to a company and optionally narrowed to a country and
// state; the most specific matching rule set wins. The Level ordinal orders
// rules for cascading: a cascading rule computes its tax on a base that
// already includes the previous level's tax amount.
type TaxRule struct {
	ID        string              `db:"id" json:"id"`
	Name      string              `db:"name" json:"name"`
	Amount    decimal.Decimal     `db:"amount" json:"amount"` // percentage
	Type      types.TaxRuleType   `db:"type" json:"type"`
	Level     int                 `db:"level" json:"level"`
	Cascade   bool                `db:"cascade_tax" json:"cascade"`
	Country   *string             `db:"country" json:"country,omitempty"`
	State     *string             `db:"state" json:"state,omitempty"`
	TaxStatus types.TaxRuleStatus `db:"tax_status" json:"tax_status"`
	types.BaseModel
}

// Matches reports whether the rule applies to the given location. A nil
// country/state on the rule is a wildcard.
func (r *TaxRule) Matches(country, state string) bool {
	if r.Country != nil && *r.Country != country {
		return false
	}
	if r.State != nil && *r.State != state {
		return false
	}
	return true
}

// Specificity scores how narrowly the rule is scoped so that the most
// specific match wins: state beats country beats company-wide.
func (r *TaxRule) Specificity() int {
	score := 0
	if r.Country != nil {
		score++
	}
	if r.State != nil {
		score++
	}
	return score
}

func (r *TaxRule) Validate() error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if err := r.TaxStatus.Validate(); err != nil {
		return err
	}
	return nil
}

// MostSpecific filters rules down to those sharing the highest specificity
// for the given location, preserving input order.
func MostSpecific(rules []*TaxRule, country, state string) []*TaxRule {
	best := -1
	for _, r := range rules {
		if !r.Matches(country, state) {
			continue
		}
		if s := r.Specificity(); s > best {
			best = s
		}
	}

	if best < 0 {
		return nil
	}

	var out []*TaxRule
	for _, r := range rules {
		if r.Matches(country, state) && r.Specificity() == best {
			out = append(out, r)
		}
	}
	return out
}
