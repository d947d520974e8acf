package taxrule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbill/stackbill/internal/types"
)

func rule(id string, amount float64, level int, cascade bool, ruleType types.TaxRuleType) *TaxRule {
	return &TaxRule{
		ID:        id,
		Name:      id,
		Amount:    decimal.NewFromFloat(amount),
		Type:      ruleType,
		Level:     level,
		Cascade:   cascade,
		TaxStatus: types.TaxRuleStatusActive,
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name             string
		rules            []*TaxRule
		subtotal         decimal.Decimal
		taxExempt        bool
		wantTotalTax     decimal.Decimal
		wantInclusive    decimal.Decimal
		wantLineTotal    decimal.Decimal
		wantWithTax      decimal.Decimal
		wantAppliedCount int
	}{
		{
			name: "single_exclusive_rule",
			rules: []*TaxRule{
				rule("gst", 10, 1, false, types.TaxRuleTypeExclusive),
			},
			subtotal:         decimal.NewFromInt(100),
			wantTotalTax:     decimal.NewFromInt(10),
			wantInclusive:    decimal.Zero,
			wantLineTotal:    decimal.NewFromInt(100),
			wantWithTax:      decimal.NewFromInt(110),
			wantAppliedCount: 1,
		},
		{
			name: "non_cascading_rules_are_additive",
			rules: []*TaxRule{
				rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
				rule("pst", 7, 2, false, types.TaxRuleTypeExclusive),
			},
			subtotal: decimal.NewFromInt(100),
			// 5% of 100 + 7% of 100
			wantTotalTax:     decimal.NewFromInt(12),
			wantInclusive:    decimal.Zero,
			wantLineTotal:    decimal.NewFromInt(100),
			wantWithTax:      decimal.NewFromInt(112),
			wantAppliedCount: 2,
		},
		{
			name: "cascading_level_two_bases_on_level_one_amount",
			rules: []*TaxRule{
				rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
				rule("qst", 9.975, 2, true, types.TaxRuleTypeExclusive),
			},
			subtotal: decimal.NewFromInt(100),
			// level 1: 5.00; level 2: 9.975% of 105.00 = 10.47
			wantTotalTax:     decimal.NewFromFloat(15.47),
			wantInclusive:    decimal.Zero,
			wantLineTotal:    decimal.NewFromInt(100),
			wantWithTax:      decimal.NewFromFloat(115.47),
			wantAppliedCount: 2,
		},
		{
			name: "cascade_without_previous_level_uses_raw_subtotal",
			rules: []*TaxRule{
				rule("orphan", 10, 3, true, types.TaxRuleTypeExclusive),
			},
			subtotal:         decimal.NewFromInt(200),
			wantTotalTax:     decimal.NewFromInt(20),
			wantInclusive:    decimal.Zero,
			wantLineTotal:    decimal.NewFromInt(200),
			wantWithTax:      decimal.NewFromInt(220),
			wantAppliedCount: 1,
		},
		{
			name: "inclusive_rule_contributes_to_line_total",
			rules: []*TaxRule{
				rule("vat", 20, 1, false, types.TaxRuleTypeInclusive),
			},
			subtotal:         decimal.NewFromInt(50),
			wantTotalTax:     decimal.NewFromInt(10),
			wantInclusive:    decimal.NewFromInt(10),
			wantLineTotal:    decimal.NewFromInt(60),
			wantWithTax:      decimal.NewFromInt(60),
			wantAppliedCount: 1,
		},
		{
			name: "exempt_client_skips_all_but_inclusive_calculated",
			rules: []*TaxRule{
				rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
				rule("vat", 20, 2, false, types.TaxRuleTypeInclusiveCalculated),
			},
			subtotal:         decimal.NewFromInt(100),
			taxExempt:        true,
			wantTotalTax:     decimal.NewFromInt(20),
			wantInclusive:    decimal.NewFromInt(20),
			wantLineTotal:    decimal.NewFromInt(120),
			wantWithTax:      decimal.NewFromInt(120),
			wantAppliedCount: 1,
		},
		{
			name:             "no_rules",
			rules:            nil,
			subtotal:         decimal.NewFromInt(100),
			wantTotalTax:     decimal.Zero,
			wantInclusive:    decimal.Zero,
			wantLineTotal:    decimal.NewFromInt(100),
			wantWithTax:      decimal.NewFromInt(100),
			wantAppliedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.rules, tt.subtotal, tt.taxExempt)
			require.NotNil(t, got)

			assert.True(t, tt.wantTotalTax.Equal(got.TotalTax),
				"total tax: want %s got %s", tt.wantTotalTax, got.TotalTax)
			assert.True(t, tt.wantInclusive.Equal(got.InclusiveAmount),
				"inclusive: want %s got %s", tt.wantInclusive, got.InclusiveAmount)
			assert.True(t, tt.wantLineTotal.Equal(got.LineTotal),
				"line total: want %s got %s", tt.wantLineTotal, got.LineTotal)
			assert.True(t, tt.wantWithTax.Equal(got.LineTotalWithTax),
				"line total with tax: want %s got %s", tt.wantWithTax, got.LineTotalWithTax)
			assert.Len(t, got.Applied, tt.wantAppliedCount)
		})
	}
}

func TestCalculateCascadeIncreasesContribution(t *testing.T) {
	subtotal := decimal.NewFromInt(100)
	flat := []*TaxRule{
		rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
		rule("pst", 8, 2, false, types.TaxRuleTypeExclusive),
	}
	cascaded := []*TaxRule{
		rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
		rule("pst", 8, 2, true, types.TaxRuleTypeExclusive),
	}

	flatResult := Calculate(flat, subtotal, false)
	cascadedResult := Calculate(cascaded, subtotal, false)

	// enabling cascade on the level 2 rule strictly increases its
	// contribution versus the same rules without cascade
	assert.True(t, cascadedResult.Applied[1].Amount.GreaterThan(flatResult.Applied[1].Amount))
	assert.True(t, cascadedResult.TotalTax.GreaterThan(flatResult.TotalTax))
}

func TestCalculateProcessesRulesInLevelOrder(t *testing.T) {
	// rules intentionally supplied out of level order
	rules := []*TaxRule{
		rule("qst", 9.975, 2, true, types.TaxRuleTypeExclusive),
		rule("gst", 5, 1, false, types.TaxRuleTypeExclusive),
	}

	got := Calculate(rules, decimal.NewFromInt(100), false)
	require.Len(t, got.Applied, 2)

	assert.Equal(t, "gst", got.Applied[0].Rule.ID)
	assert.Equal(t, "qst", got.Applied[1].Rule.ID)
	// the cascading rule saw the level 1 amount in its base
	assert.True(t, got.Applied[1].Base.Equal(decimal.NewFromInt(105)))
}

func TestMostSpecific(t *testing.T) {
	country := "CA"
	state := "QC"

	companyWide := rule("company", 5, 1, false, types.TaxRuleTypeExclusive)
	countryRule := rule("country", 5, 1, false, types.TaxRuleTypeExclusive)
	countryRule.Country = &country
	stateRule := rule("state", 9.975, 2, true, types.TaxRuleTypeExclusive)
	stateRule.Country = &country
	stateRule.State = &state

	all := []*TaxRule{companyWide, countryRule, stateRule}

	got := MostSpecific(all, "CA", "QC")
	require.Len(t, got, 1)
	assert.Equal(t, "state", got[0].ID)

	got = MostSpecific(all, "CA", "ON")
	require.Len(t, got, 1)
	assert.Equal(t, "country", got[0].ID)

	got = MostSpecific(all, "US", "NY")
	require.Len(t, got, 1)
	assert.Equal(t, "company", got[0].ID)
}
