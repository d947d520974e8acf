package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/stackbill/stackbill/internal/domain/coupon"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type couponRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewCouponRepository creates a new instance of coupon repository
func NewCouponRepository(db postgres.IClient, logger *logger.Logger) coupon.Repository {
	return &couponRepository{
		db:     db,
		logger: logger,
	}
}

// couponRow maps the array columns through pq before they reach the model.
type couponRow struct {
	coupon.Coupon
	PackageIDsRaw pq.StringArray `db:"package_ids"`
	TermsRaw      pq.Int64Array  `db:"terms"`
}

func (row *couponRow) model() *coupon.Coupon {
	c := row.Coupon
	c.PackageIDs = []string(row.PackageIDsRaw)
	c.Terms = make([]int, len(row.TermsRaw))
	for i, t := range row.TermsRaw {
		c.Terms[i] = int(t)
	}
	return &c
}

func (r *couponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	q := r.db.Querier(ctx)

	query := `
		INSERT INTO coupons (
			id, company_id, code, type, amount, currency,
			max_uses, uses, start_date, end_date, package_ids, terms,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :company_id, :code, :type, :amount, :currency,
			:max_uses, :uses, :start_date, :end_date, :package_ids, :terms,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, c)); err != nil {
		return ierr.WithError(err).
			WithHint("coupon insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *couponRepository) params(ctx context.Context, c *coupon.Coupon) map[string]interface{} {
	terms := make(pq.Int64Array, len(c.Terms))
	for i, t := range c.Terms {
		terms[i] = int64(t)
	}
	return map[string]interface{}{
		"id":          c.ID,
		"company_id":  types.GetCompanyID(ctx),
		"code":        c.Code,
		"type":        c.Type,
		"amount":      c.Amount,
		"currency":    c.Currency,
		"max_uses":    c.MaxUses,
		"uses":        c.Uses,
		"start_date":  c.StartDate,
		"end_date":    c.EndDate,
		"package_ids": pq.StringArray(c.PackageIDs),
		"terms":       terms,
		"status":      c.Status,
		"created_at":  c.CreatedAt,
		"updated_at":  time.Now().UTC(),
		"created_by":  c.CreatedBy,
		"updated_by":  types.GetStaffID(ctx),
	}
}

func (r *couponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.get(ctx,
		`SELECT * FROM coupons WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.get(ctx,
		`SELECT * FROM coupons WHERE code = $1 AND company_id = $2 AND status != $3`,
		code, types.GetCompanyID(ctx), types.StatusDeleted)
}

func (r *couponRepository) get(ctx context.Context, query string, args ...interface{}) (*coupon.Coupon, error) {
	q := r.db.Querier(ctx)

	var row couponRow
	err := q.GetContext(ctx, &row, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("coupon not found: %v", args[0])).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("coupon query failed").
			Mark(ierr.ErrDatabase)
	}
	return row.model(), nil
}

func (r *couponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	q := r.db.Querier(ctx)

	query := `
		UPDATE coupons SET
			code = :code,
			type = :type,
			amount = :amount,
			currency = :currency,
			max_uses = :max_uses,
			start_date = :start_date,
			end_date = :end_date,
			package_ids = :package_ids,
			terms = :terms,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, c)); err != nil {
		return ierr.WithError(err).
			WithHint("coupon update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// IncrementUsage is guarded against racing past max_uses.
func (r *couponRepository) IncrementUsage(ctx context.Context, id string) error {
	q := r.db.Querier(ctx)

	res, err := q.ExecContext(ctx,
		`UPDATE coupons SET uses = uses + 1
		 WHERE id = $1 AND company_id = $2
		 AND (max_uses IS NULL OR uses < max_uses)`,
		id, types.GetCompanyID(ctx))
	if err != nil {
		return postgres.MarkConflict(ierr.WithError(err).
			WithHint("coupon usage update failed").
			Mark(ierr.ErrDatabase))
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ierr.NewError("coupon usage limit reached").
			WithReportableDetails(map[string]any{"coupon_id": id}).
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}
