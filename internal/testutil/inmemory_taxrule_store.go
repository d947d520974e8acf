package testutil

import (
	"context"

	"github.com/samber/lo"

	"github.com/stackbill/stackbill/internal/domain/taxrule"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/types"
)

// InMemoryTaxRuleStore implements taxrule.Repository
type InMemoryTaxRuleStore struct {
	*InMemoryStore[*taxrule.TaxRule]
}

// NewInMemoryTaxRuleStore creates a new in-memory tax rule store
func NewInMemoryTaxRuleStore() *InMemoryTaxRuleStore {
	return &InMemoryTaxRuleStore{
		InMemoryStore: NewInMemoryStore[*taxrule.TaxRule](),
	}
}

func copyTaxRule(rule *taxrule.TaxRule) *taxrule.TaxRule {
	if rule == nil {
		return nil
	}
	out := *rule
	return &out
}

func (s *InMemoryTaxRuleStore) Create(ctx context.Context, rule *taxrule.TaxRule) error {
	return s.InMemoryStore.Create(ctx, rule.ID, copyTaxRule(rule))
}

func (s *InMemoryTaxRuleStore) Get(ctx context.Context, id string) (*taxrule.TaxRule, error) {
	rule, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("tax rule not found").
			WithHintf("tax rule %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return copyTaxRule(rule), nil
}

func (s *InMemoryTaxRuleStore) Update(ctx context.Context, rule *taxrule.TaxRule) error {
	return s.InMemoryStore.Update(ctx, rule.ID, copyTaxRule(rule))
}

func (s *InMemoryTaxRuleStore) Delete(ctx context.Context, id string) error {
	return s.InMemoryStore.Delete(ctx, id)
}

func (s *InMemoryTaxRuleStore) ListActive(ctx context.Context) ([]*taxrule.TaxRule, error) {
	companyID := types.GetCompanyID(ctx)
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, rule *taxrule.TaxRule, _ interface{}) bool {
		return rule.CompanyID == companyID &&
			rule.TaxStatus == types.TaxRuleStatusActive &&
			rule.Status != types.StatusDeleted
	}, func(a, b *taxrule.TaxRule) bool {
		return a.Level < b.Level
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(rule *taxrule.TaxRule, _ int) *taxrule.TaxRule {
		return copyTaxRule(rule)
	}), nil
}

func (s *InMemoryTaxRuleStore) GetByIDs(ctx context.Context, ids []string) ([]*taxrule.TaxRule, error) {
	result, err := s.InMemoryStore.List(ctx, nil, func(ctx context.Context, rule *taxrule.TaxRule, _ interface{}) bool {
		return lo.Contains(ids, rule.ID)
	}, func(a, b *taxrule.TaxRule) bool {
		return a.Level < b.Level
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(result, func(rule *taxrule.TaxRule, _ int) *taxrule.TaxRule {
		return copyTaxRule(rule)
	}), nil
}
