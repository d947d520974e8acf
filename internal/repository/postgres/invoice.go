package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stackbill/stackbill/internal/domain/invoice"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

// invoiceNumberIndex is the unique index backing the number allocator. A
// unique violation on it means another transaction won the MAX read race;
// the whole operation is safe to re-execute with a fresh scan.
const invoiceNumberIndex = "idx_invoices_number"

type invoiceRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// markAllocatorConflict classifies allocator insert errors. Losing the
// sequence race at default isolation surfaces as a unique violation on the
// allocator's backing index rather than a serialization failure, and must
// equally be marked as a retryable conflict.
func markAllocatorConflict(err error, index, hint string) error {
	if postgres.IsUniqueViolation(err, index) {
		return ierr.WithError(err).
			WithHint("sequence value already allocated").
			Mark(ierr.ErrTransactionConflict)
	}
	return postgres.MarkConflict(ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrDatabase))
}

// NewInvoiceRepository creates a new instance of invoice repository
func NewInvoiceRepository(db postgres.IClient, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{
		db:     db,
		logger: logger,
	}
}

// CreateWithNumber inserts the invoice and allocates its sequential number
// in the same statement. The next value is computed as
// GREATEST(MAX(existing for this format), configured start) + increment via
// a correlated subquery; the inner derived table keeps the read off the
// table being written so the insert does not conflict with its own scan.
// Date placeholders in the format are resolved before the subquery is built,
// which is what makes numbering reset when the template carries a date
// component. Serialization failures and lost races on the numbering index
// both surface as retryable conflict errors.
func (r *invoiceRepository) CreateWithNumber(ctx context.Context, inv *invoice.Invoice, format invoice.NumberFormat) error {
	resolved := invoice.ResolveFormat(format.Format, inv.DateBilled)
	inv.NumberFormat = resolved

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			INSERT INTO invoices (
				id, company_id, client_id, invoice_status,
				number, number_format,
				subtotal, total, paid,
				date_billed, date_due, date_closed,
				currency, recurring_invoice_id, metadata,
				status, created_at, updated_at, created_by, updated_by
			)
			SELECT
				:id, :company_id, :client_id, :invoice_status,
				GREATEST(
					COALESCE((SELECT MAX(seq.number) FROM (
						SELECT number FROM invoices
						WHERE company_id = :company_id
						AND number_format = :number_format
					) AS seq), 0),
					:number_start
				) + :number_increment,
				:number_format,
				:subtotal, :total, :paid,
				:date_billed, :date_due, :date_closed,
				:currency, :recurring_invoice_id, :metadata,
				:status, :created_at, :updated_at, :created_by, :updated_by
			RETURNING number`

		params := map[string]interface{}{
			"id":                   inv.ID,
			"company_id":           types.GetCompanyID(ctx),
			"client_id":            inv.ClientID,
			"invoice_status":       inv.InvoiceStatus,
			"number_format":        resolved,
			"number_start":         format.Start,
			"number_increment":     format.Increment,
			"subtotal":             inv.Subtotal,
			"total":                inv.Total,
			"paid":                 inv.Paid,
			"date_billed":          inv.DateBilled,
			"date_due":             inv.DateDue,
			"date_closed":          inv.DateClosed,
			"currency":             inv.Currency,
			"recurring_invoice_id": inv.RecurringInvoiceID,
			"metadata":             inv.Metadata,
			"status":               inv.Status,
			"created_at":           inv.CreatedAt,
			"updated_at":           inv.UpdatedAt,
			"created_by":           inv.CreatedBy,
			"updated_by":           inv.UpdatedBy,
		}

		rows, err := sqlx.NamedQueryContext(ctx, q, query, params)
		if err != nil {
			return markAllocatorConflict(err, invoiceNumberIndex, "invoice insert failed")
		}
		defer rows.Close()

		if !rows.Next() {
			return ierr.NewError("no invoice number returned").
				Mark(ierr.ErrDatabase)
		}
		if err := rows.Scan(&inv.Number); err != nil {
			return ierr.WithError(err).
				WithHint("invoice number scan failed").
				Mark(ierr.ErrDatabase)
		}
		rows.Close()

		if err := r.insertLineItems(ctx, inv.ID, inv.LineItems); err != nil {
			return err
		}
		if err := r.insertDeliveries(ctx, inv.ID, inv.Deliveries); err != nil {
			return err
		}

		r.logger.Infow("created invoice",
			"invoice_id", inv.ID,
			"number", inv.Number,
			"number_format", resolved,
		)
		return nil
	})
}

func (r *invoiceRepository) insertLineItems(ctx context.Context, invoiceID string, items []*invoice.LineItem) error {
	q := r.db.Querier(ctx)

	for _, item := range items {
		item.InvoiceID = invoiceID

		query := `
			INSERT INTO invoice_line_items (
				id, invoice_id, company_id, service_id, description,
				quantity, amount, sort_order, taxable,
				status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :invoice_id, :company_id, :service_id, :description,
				:quantity, :amount, :sort_order, :taxable,
				:status, :created_at, :updated_at, :created_by, :updated_by
			)
			ON CONFLICT (id) DO UPDATE SET
				description = EXCLUDED.description,
				quantity = EXCLUDED.quantity,
				amount = EXCLUDED.amount,
				sort_order = EXCLUDED.sort_order,
				taxable = EXCLUDED.taxable,
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by`

		params := map[string]interface{}{
			"id":          item.ID,
			"invoice_id":  item.InvoiceID,
			"company_id":  types.GetCompanyID(ctx),
			"service_id":  item.ServiceID,
			"description": item.Description,
			"quantity":    item.Quantity,
			"amount":      item.Amount,
			"sort_order":  item.Order,
			"taxable":     item.Taxable,
			"status":      item.Status,
			"created_at":  item.CreatedAt,
			"updated_at":  item.UpdatedAt,
			"created_by":  item.CreatedBy,
			"updated_by":  item.UpdatedBy,
		}

		if _, err := q.NamedExecContext(ctx, query, params); err != nil {
			return postgres.MarkConflict(ierr.WithError(err).
				WithHint("line item insert failed").
				Mark(ierr.ErrDatabase))
		}

		if err := r.replaceLineTaxes(ctx, item); err != nil {
			return err
		}
	}

	return nil
}

func (r *invoiceRepository) replaceLineTaxes(ctx context.Context, item *invoice.LineItem) error {
	q := r.db.Querier(ctx)

	if _, err := q.ExecContext(ctx,
		`DELETE FROM invoice_line_taxes WHERE line_item_id = $1`, item.ID); err != nil {
		return ierr.WithError(err).
			WithHint("line tax delete failed").
			Mark(ierr.ErrDatabase)
	}

	for _, tax := range item.Taxes {
		tax.LineItemID = item.ID
		if _, err := q.ExecContext(ctx,
			`INSERT INTO invoice_line_taxes (line_item_id, tax_rule_id, cascade, subtract)
			 VALUES ($1, $2, $3, $4)`,
			tax.LineItemID, tax.TaxRuleID, tax.Cascade, tax.Subtract); err != nil {
			return ierr.WithError(err).
				WithHint("line tax insert failed").
				Mark(ierr.ErrDatabase)
		}
	}

	return nil
}

func (r *invoiceRepository) insertDeliveries(ctx context.Context, invoiceID string, deliveries []*invoice.Delivery) error {
	q := r.db.Querier(ctx)

	for _, d := range deliveries {
		d.InvoiceID = invoiceID
		if _, err := q.ExecContext(ctx,
			`INSERT INTO invoice_deliveries (id, invoice_id, method, date_sent)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			d.ID, d.InvoiceID, d.Method, d.DateSent); err != nil {
			return ierr.WithError(err).
				WithHint("invoice delivery insert failed").
				Mark(ierr.ErrDatabase)
		}
	}

	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	q := r.db.Querier(ctx)

	var inv invoice.Invoice
	err := q.GetContext(ctx, &inv,
		`SELECT * FROM invoices WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(invoice.ErrInvoiceNotFound).
				WithHintf("invoice %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("invoice query failed").
			Mark(ierr.ErrDatabase)
	}

	if err := r.loadLineItems(ctx, &inv); err != nil {
		return nil, err
	}
	if err := r.loadDeliveries(ctx, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) loadLineItems(ctx context.Context, inv *invoice.Invoice) error {
	q := r.db.Querier(ctx)

	var items []*invoice.LineItem
	err := q.SelectContext(ctx, &items,
		`SELECT * FROM invoice_line_items
		 WHERE invoice_id = $1 AND status != $2
		 ORDER BY sort_order ASC`,
		inv.ID, types.StatusDeleted)
	if err != nil {
		return ierr.WithError(err).
			WithHint("line item query failed").
			Mark(ierr.ErrDatabase)
	}

	for _, item := range items {
		var taxes []*invoice.LineTax
		err := q.SelectContext(ctx, &taxes,
			`SELECT * FROM invoice_line_taxes WHERE line_item_id = $1`, item.ID)
		if err != nil {
			return ierr.WithError(err).
				WithHint("line tax query failed").
				Mark(ierr.ErrDatabase)
		}
		item.Taxes = taxes
	}

	inv.LineItems = items
	return nil
}

func (r *invoiceRepository) loadDeliveries(ctx context.Context, inv *invoice.Invoice) error {
	q := r.db.Querier(ctx)

	var deliveries []*invoice.Delivery
	err := q.SelectContext(ctx, &deliveries,
		`SELECT * FROM invoice_deliveries WHERE invoice_id = $1`, inv.ID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("invoice delivery query failed").
			Mark(ierr.ErrDatabase)
	}

	inv.Deliveries = deliveries
	return nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			UPDATE invoices SET
				invoice_status = :invoice_status,
				subtotal = :subtotal,
				total = :total,
				paid = :paid,
				date_billed = :date_billed,
				date_due = :date_due,
				date_closed = :date_closed,
				currency = :currency,
				metadata = :metadata,
				updated_at = :updated_at,
				updated_by = :updated_by
			WHERE id = :id AND company_id = :company_id`

		params := map[string]interface{}{
			"id":             inv.ID,
			"company_id":     types.GetCompanyID(ctx),
			"invoice_status": inv.InvoiceStatus,
			"subtotal":       inv.Subtotal,
			"total":          inv.Total,
			"paid":           inv.Paid,
			"date_billed":    inv.DateBilled,
			"date_due":       inv.DateDue,
			"date_closed":    inv.DateClosed,
			"currency":       inv.Currency,
			"metadata":       inv.Metadata,
			"updated_at":     time.Now().UTC(),
			"updated_by":     types.GetStaffID(ctx),
		}

		if _, err := q.NamedExecContext(ctx, query, params); err != nil {
			return postgres.MarkConflict(ierr.WithError(err).
				WithHint("invoice update failed").
				Mark(ierr.ErrDatabase))
		}

		if inv.LineItems != nil {
			if err := r.insertLineItems(ctx, inv.ID, inv.LineItems); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *invoiceRepository) Delete(ctx context.Context, id string) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`UPDATE invoices SET status = $1 WHERE id = $2 AND company_id = $3`,
		types.StatusDeleted, id, types.GetCompanyID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("invoice delete failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) ListByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	return r.list(ctx,
		`SELECT * FROM invoices
		 WHERE client_id = $1 AND company_id = $2 AND status != $3
		 ORDER BY date_billed ASC`,
		clientID, types.GetCompanyID(ctx), types.StatusDeleted)
}

func (r *invoiceRepository) ListOpenByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	return r.list(ctx,
		`SELECT * FROM invoices
		 WHERE client_id = $1 AND company_id = $2 AND status != $3
		 AND invoice_status IN ($4, $5) AND date_closed IS NULL
		 ORDER BY date_due ASC`,
		clientID, types.GetCompanyID(ctx), types.StatusDeleted,
		types.InvoiceStatusActive, types.InvoiceStatusProforma)
}

func (r *invoiceRepository) ListOpenByService(ctx context.Context, serviceID string) ([]*invoice.Invoice, error) {
	return r.list(ctx,
		`SELECT DISTINCT i.* FROM invoices i
		 JOIN invoice_line_items li ON li.invoice_id = i.id AND li.status != $3
		 WHERE li.service_id = $1 AND i.company_id = $2 AND i.status != $3
		 AND i.invoice_status IN ($4, $5) AND i.date_closed IS NULL
		 ORDER BY i.date_due ASC`,
		serviceID, types.GetCompanyID(ctx), types.StatusDeleted,
		types.InvoiceStatusActive, types.InvoiceStatusProforma)
}

func (r *invoiceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*invoice.Invoice, error) {
	q := r.db.Querier(ctx)

	var invoices []*invoice.Invoice
	if err := q.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("invoice list query failed").
			Mark(ierr.ErrDatabase)
	}

	for _, inv := range invoices {
		if err := r.loadLineItems(ctx, inv); err != nil {
			return nil, err
		}
		if err := r.loadDeliveries(ctx, inv); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// Renumber allocates a fresh number under the given format, used when a
// proforma invoice is promoted to active. Same derived-table subquery as
// CreateWithNumber.
func (r *invoiceRepository) Renumber(ctx context.Context, id string, format invoice.NumberFormat) error {
	resolved := invoice.ResolveFormat(format.Format, time.Now().UTC())

	q := r.db.Querier(ctx)

	query := `
		UPDATE invoices SET
			number = GREATEST(
				COALESCE((SELECT MAX(seq.number) FROM (
					SELECT number FROM invoices
					WHERE company_id = :company_id
					AND number_format = :number_format
				) AS seq), 0),
				:number_start
			) + :number_increment,
			number_format = :number_format,
			updated_at = :updated_at
		WHERE id = :id AND company_id = :company_id`

	params := map[string]interface{}{
		"id":               id,
		"company_id":       types.GetCompanyID(ctx),
		"number_format":    resolved,
		"number_start":     format.Start,
		"number_increment": format.Increment,
		"updated_at":       time.Now().UTC(),
	}

	if _, err := q.NamedExecContext(ctx, query, params); err != nil {
		return markAllocatorConflict(err, invoiceNumberIndex, "invoice renumber failed")
	}
	return nil
}

func (r *invoiceRepository) AddLineItems(ctx context.Context, invoiceID string, items []*invoice.LineItem) error {
	return r.insertLineItems(ctx, invoiceID, items)
}

func (r *invoiceRepository) RemoveLineItems(ctx context.Context, invoiceID string, itemIDs []string) error {
	q := r.db.Querier(ctx)

	for _, itemID := range itemIDs {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM invoice_line_taxes WHERE line_item_id = $1`, itemID); err != nil {
			return ierr.WithError(err).
				WithHint("line tax delete failed").
				Mark(ierr.ErrDatabase)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM invoice_line_items WHERE id = $1 AND invoice_id = $2`,
			itemID, invoiceID); err != nil {
			return ierr.WithError(err).
				WithHint("line item delete failed").
				Mark(ierr.ErrDatabase)
		}
	}
	return nil
}

func (r *invoiceRepository) AddDeliveries(ctx context.Context, invoiceID string, deliveries []*invoice.Delivery) error {
	return r.insertDeliveries(ctx, invoiceID, deliveries)
}

func (r *invoiceRepository) MarkDeliverySent(ctx context.Context, deliveryID string, at time.Time) error {
	q := r.db.Querier(ctx)

	if _, err := q.ExecContext(ctx,
		`UPDATE invoice_deliveries SET date_sent = $1 WHERE id = $2`,
		at, deliveryID); err != nil {
		return ierr.WithError(err).
			WithHint("invoice delivery update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) CountByRecurring(ctx context.Context, recurringInvoiceID string) (int, error) {
	q := r.db.Querier(ctx)

	var count int
	err := q.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM invoices
		 WHERE recurring_invoice_id = $1 AND company_id = $2 AND status != $3`,
		recurringInvoiceID, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("recurring invoice count failed").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}
