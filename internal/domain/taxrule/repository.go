package taxrule

import "context"

// Repository provides access to persisted tax rules
type Repository interface {
	Create(ctx context.Context, rule *TaxRule) error
	Get(ctx context.Context, id string) (*TaxRule, error)
	Update(ctx context.Context, rule *TaxRule) error
	Delete(ctx context.Context, id string) error

	// ListActive returns the company's active tax rules ordered by level
	// ascending
	ListActive(ctx context.Context) ([]*TaxRule, error)

	// GetByIDs returns the rules for the given ids, active or not, so that
	// persisted line tax associations can be re-priced
	GetByIDs(ctx context.Context, ids []string) ([]*TaxRule, error)
}
