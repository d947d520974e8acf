package taxrule

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// AppliedTax is the amount a single rule contributed to one line item
type AppliedTax struct {
	Rule   *TaxRule
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// LineTaxes is the full tax breakdown for one line item subtotal
type LineTaxes struct {
	Applied []AppliedTax
	// InclusiveAmount is the portion of tax already carried inside the
	// advertised price (inclusive and inclusive_calculated rules)
	InclusiveAmount decimal.Decimal
	// TotalTax is the sum of every applied rule, inclusive or not
	TotalTax decimal.Decimal
	// LineTotal is the line subtotal plus its inclusive tax portion
	LineTotal decimal.Decimal
	// LineTotalWithTax is the line subtotal plus all applied tax
	LineTotalWithTax decimal.Decimal
}

// Calculate computes the tax cascade for a single line subtotal.
//
// Rules are processed strictly in ascending level order. A cascading rule at
// level two or higher bases its percentage on the subtotal plus the previous
// level's computed amount; every other rule bases on the raw subtotal. Each
// per-rule amount is rounded to 2 decimal places as it is computed. Same
// level duplicates are not expected; if present the last one wins as the
// recorded amount for that level.
//
// Tax-exempt clients skip every rule except inclusive_calculated ones, which
// are baked into the advertised price and therefore never skippable.
func Calculate(rules []*TaxRule, subtotal decimal.Decimal, taxExempt bool) *LineTaxes {
	ordered := make([]*TaxRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level < ordered[j].Level
	})

	result := &LineTaxes{
		InclusiveAmount: decimal.Zero,
		TotalTax:        decimal.Zero,
	}

	levelAmounts := make(map[int]decimal.Decimal)
	for _, rule := range ordered {
		if taxExempt && rule.Type != types.TaxRuleTypeInclusiveCalculated {
			continue
		}

		base := subtotal
		if rule.Cascade && rule.Level > 1 {
			if prev, ok := levelAmounts[rule.Level-1]; ok {
				base = subtotal.Add(prev)
			}
		}

		amount := rule.Amount.Mul(base).Div(decimal.NewFromInt(100)).Round(2)
		levelAmounts[rule.Level] = amount

		result.Applied = append(result.Applied, AppliedTax{
			Rule:   rule,
			Base:   base,
			Amount: amount,
		})

		if rule.Type.IsInclusive() {
			result.InclusiveAmount = result.InclusiveAmount.Add(amount)
		}
		result.TotalTax = result.TotalTax.Add(amount)
	}

	result.LineTotal = subtotal.Add(result.InclusiveAmount)
	result.LineTotalWithTax = subtotal.Add(result.TotalTax)
	return result
}
