package currency

import (
	"context"

	"github.com/shopspring/decimal"
)

// Converter converts an amount between currencies within a company scope.
// Rate sourcing lives outside this core; implementations are injected.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// IdentityConverter passes amounts through unchanged when the currencies
// match and otherwise applies a 1:1 rate. Useful for tests and single
// currency deployments.
type IdentityConverter struct{}

func (IdentityConverter) Convert(_ context.Context, amount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	return amount, nil
}
