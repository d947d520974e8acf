package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stackbill/stackbill/internal/domain/taxrule"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type taxRuleRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewTaxRuleRepository creates a new instance of tax rule repository
func NewTaxRuleRepository(db postgres.IClient, logger *logger.Logger) taxrule.Repository {
	return &taxRuleRepository{
		db:     db,
		logger: logger,
	}
}

func (r *taxRuleRepository) Create(ctx context.Context, rule *taxrule.TaxRule) error {
	q := r.db.Querier(ctx)

	query := `
		INSERT INTO tax_rules (
			id, company_id, name, amount, type, level, cascade_tax,
			country, state, tax_status,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :company_id, :name, :amount, :type, :level, :cascade_tax,
			:country, :state, :tax_status,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, rule)); err != nil {
		return ierr.WithError(err).
			WithHint("tax rule insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *taxRuleRepository) params(ctx context.Context, rule *taxrule.TaxRule) map[string]interface{} {
	return map[string]interface{}{
		"id":          rule.ID,
		"company_id":  types.GetCompanyID(ctx),
		"name":        rule.Name,
		"amount":      rule.Amount,
		"type":        rule.Type,
		"level":       rule.Level,
		"cascade_tax": rule.Cascade,
		"country":     rule.Country,
		"state":       rule.State,
		"tax_status":  rule.TaxStatus,
		"status":      rule.Status,
		"created_at":  rule.CreatedAt,
		"updated_at":  time.Now().UTC(),
		"created_by":  rule.CreatedBy,
		"updated_by":  types.GetStaffID(ctx),
	}
}

func (r *taxRuleRepository) Get(ctx context.Context, id string) (*taxrule.TaxRule, error) {
	q := r.db.Querier(ctx)

	var rule taxrule.TaxRule
	err := q.GetContext(ctx, &rule,
		`SELECT * FROM tax_rules WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("tax rule %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("tax rule query failed").
			Mark(ierr.ErrDatabase)
	}
	return &rule, nil
}

func (r *taxRuleRepository) Update(ctx context.Context, rule *taxrule.TaxRule) error {
	q := r.db.Querier(ctx)

	query := `
		UPDATE tax_rules SET
			name = :name,
			amount = :amount,
			type = :type,
			level = :level,
			cascade_tax = :cascade_tax,
			country = :country,
			state = :state,
			tax_status = :tax_status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, rule)); err != nil {
		return ierr.WithError(err).
			WithHint("tax rule update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *taxRuleRepository) Delete(ctx context.Context, id string) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`UPDATE tax_rules SET status = $1 WHERE id = $2 AND company_id = $3`,
		types.StatusDeleted, id, types.GetCompanyID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("tax rule delete failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *taxRuleRepository) GetByIDs(ctx context.Context, ids []string) ([]*taxrule.TaxRule, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := r.db.Querier(ctx)

	query, args, err := sqlx.In(
		`SELECT * FROM tax_rules WHERE id IN (?) AND company_id = ?`,
		ids, types.GetCompanyID(ctx))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("tax rule query build failed").
			Mark(ierr.ErrDatabase)
	}

	var rules []*taxrule.TaxRule
	if err := q.SelectContext(ctx, &rules, q.Rebind(query), args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("tax rule batch query failed").
			Mark(ierr.ErrDatabase)
	}
	return rules, nil
}

// ListActive returns enabled rules for the company ordered by level so the
// cascade calculator can build level sums in one pass.
func (r *taxRuleRepository) ListActive(ctx context.Context) ([]*taxrule.TaxRule, error) {
	q := r.db.Querier(ctx)

	var rules []*taxrule.TaxRule
	err := q.SelectContext(ctx, &rules,
		`SELECT * FROM tax_rules
		 WHERE company_id = $1 AND tax_status = $2 AND status != $3
		 ORDER BY level ASC`,
		types.GetCompanyID(ctx), types.TaxRuleStatusActive, types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("tax rule list query failed").
			Mark(ierr.ErrDatabase)
	}
	return rules, nil
}
