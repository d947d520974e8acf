package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stackbill/stackbill/internal/domain/recurring"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type recurringRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewRecurringRepository creates a new instance of recurring invoice repository
func NewRecurringRepository(db postgres.IClient, logger *logger.Logger) recurring.Repository {
	return &recurringRepository{
		db:     db,
		logger: logger,
	}
}

func (r *recurringRepository) Create(ctx context.Context, ri *recurring.RecurringInvoice) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			INSERT INTO recurring_invoices (
				id, company_id, client_id, term, period, duration,
				date_renews, date_last_renewed, currency,
				status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :company_id, :client_id, :term, :period, :duration,
				:date_renews, :date_last_renewed, :currency,
				:status, :created_at, :updated_at, :created_by, :updated_by
			)`

		if _, err := q.NamedExecContext(ctx, query, r.params(ctx, ri)); err != nil {
			return ierr.WithError(err).
				WithHint("recurring invoice insert failed").
				Mark(ierr.ErrDatabase)
		}

		return r.replaceLineItems(ctx, ri)
	})
}

func (r *recurringRepository) params(ctx context.Context, ri *recurring.RecurringInvoice) map[string]interface{} {
	return map[string]interface{}{
		"id":                ri.ID,
		"company_id":        types.GetCompanyID(ctx),
		"client_id":         ri.ClientID,
		"term":              ri.Term,
		"period":            ri.Period,
		"duration":          ri.Duration,
		"date_renews":       ri.DateRenews,
		"date_last_renewed": ri.DateLastRenewed,
		"currency":          ri.Currency,
		"status":            ri.Status,
		"created_at":        ri.CreatedAt,
		"updated_at":        time.Now().UTC(),
		"created_by":        ri.CreatedBy,
		"updated_by":        types.GetStaffID(ctx),
	}
}

func (r *recurringRepository) replaceLineItems(ctx context.Context, ri *recurring.RecurringInvoice) error {
	q := r.db.Querier(ctx)

	if _, err := q.ExecContext(ctx,
		`DELETE FROM recurring_invoice_line_items WHERE recurring_invoice_id = $1`, ri.ID); err != nil {
		return ierr.WithError(err).
			WithHint("recurring line item delete failed").
			Mark(ierr.ErrDatabase)
	}

	for _, item := range ri.LineItems {
		item.RecurringInvoiceID = ri.ID
		_, err := q.ExecContext(ctx,
			`INSERT INTO recurring_invoice_line_items
			 (id, recurring_invoice_id, description, quantity, amount, sort_order, taxable)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.RecurringInvoiceID, item.Description,
			item.Quantity, item.Amount, item.Order, item.Taxable)
		if err != nil {
			return ierr.WithError(err).
				WithHint("recurring line item insert failed").
				Mark(ierr.ErrDatabase)
		}
	}
	return nil
}

func (r *recurringRepository) Get(ctx context.Context, id string) (*recurring.RecurringInvoice, error) {
	q := r.db.Querier(ctx)

	var ri recurring.RecurringInvoice
	err := q.GetContext(ctx, &ri,
		`SELECT * FROM recurring_invoices WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("recurring invoice %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("recurring invoice query failed").
			Mark(ierr.ErrDatabase)
	}

	if err := r.loadLineItems(ctx, &ri); err != nil {
		return nil, err
	}
	return &ri, nil
}

func (r *recurringRepository) loadLineItems(ctx context.Context, ri *recurring.RecurringInvoice) error {
	q := r.db.Querier(ctx)

	var items []*recurring.LineItem
	err := q.SelectContext(ctx, &items,
		`SELECT * FROM recurring_invoice_line_items
		 WHERE recurring_invoice_id = $1 ORDER BY sort_order ASC`, ri.ID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("recurring line item query failed").
			Mark(ierr.ErrDatabase)
	}
	ri.LineItems = items
	return nil
}

func (r *recurringRepository) Update(ctx context.Context, ri *recurring.RecurringInvoice) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			UPDATE recurring_invoices SET
				term = :term,
				period = :period,
				duration = :duration,
				date_renews = :date_renews,
				date_last_renewed = :date_last_renewed,
				currency = :currency,
				updated_at = :updated_at,
				updated_by = :updated_by
			WHERE id = :id AND company_id = :company_id`

		if _, err := q.NamedExecContext(ctx, query, r.params(ctx, ri)); err != nil {
			return ierr.WithError(err).
				WithHint("recurring invoice update failed").
				Mark(ierr.ErrDatabase)
		}

		if ri.LineItems != nil {
			return r.replaceLineItems(ctx, ri)
		}
		return nil
	})
}

func (r *recurringRepository) Delete(ctx context.Context, id string) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`UPDATE recurring_invoices SET status = $1 WHERE id = $2 AND company_id = $3`,
		types.StatusDeleted, id, types.GetCompanyID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("recurring invoice delete failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *recurringRepository) ListByClient(ctx context.Context, clientID string) ([]*recurring.RecurringInvoice, error) {
	q := r.db.Querier(ctx)

	var result []*recurring.RecurringInvoice
	err := q.SelectContext(ctx, &result,
		`SELECT * FROM recurring_invoices
		 WHERE client_id = $1 AND company_id = $2 AND status != $3
		 ORDER BY created_at ASC`,
		clientID, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("recurring invoice list query failed").
			Mark(ierr.ErrDatabase)
	}

	for _, ri := range result {
		if err := r.loadLineItems(ctx, ri); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ListRenewable returns templates whose next renew date falls on or before
// asOf plus the pre-billing window. The catch-up loop in the scheduler walks
// each result forward one cycle at a time.
func (r *recurringRepository) ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*recurring.RecurringInvoice, error) {
	q := r.db.Querier(ctx)

	cutoff := asOf.AddDate(0, 0, aheadDays)

	var result []*recurring.RecurringInvoice
	err := q.SelectContext(ctx, &result,
		`SELECT * FROM recurring_invoices
		 WHERE date_renews <= $1 AND status = $2
		 ORDER BY date_renews ASC`,
		cutoff, types.StatusActive)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("renewable query failed").
			Mark(ierr.ErrDatabase)
	}

	for _, ri := range result {
		if err := r.loadLineItems(ctx, ri); err != nil {
			return nil, err
		}
	}
	return result, nil
}
