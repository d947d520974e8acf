package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stackbill/stackbill/internal/domain/service"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type serviceRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewServiceRepository creates a new instance of service repository
func NewServiceRepository(db postgres.IClient, logger *logger.Logger) service.Repository {
	return &serviceRepository{
		db:     db,
		logger: logger,
	}
}

// serviceCodeIndex is the unique index backing the service code allocator.
const serviceCodeIndex = "idx_services_code"

// CreateWithCode inserts the service and allocates its sequential code in
// the same statement, with the derived-table subquery the invoice number
// allocator uses. Lost races on the code index surface as retryable
// conflicts.
func (r *serviceRepository) CreateWithCode(ctx context.Context, svc *service.Service, format service.CodeFormat) error {
	resolved := types.ResolveNumberFormat(format.Format, svc.DateAdded)
	svc.CodeFormat = resolved

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			INSERT INTO services (
				id, company_id, client_id, package_id, pricing_id, parent_service_id,
				service_status, code, code_format,
				qty, override_price, override_currency, coupon_id,
				module_row_id, date_added, date_renews, date_last_renewed,
				date_suspended, date_canceled, cancellation_reason,
				status, created_at, updated_at, created_by, updated_by
			)
			SELECT
				:id, :company_id, :client_id, :package_id, :pricing_id, :parent_service_id,
				:service_status,
				GREATEST(
					COALESCE((SELECT MAX(seq.code) FROM (
						SELECT code FROM services
						WHERE company_id = :company_id
						AND code_format = :code_format
					) AS seq), 0),
					:code_start
				) + :code_increment,
				:code_format,
				:qty, :override_price, :override_currency, :coupon_id,
				:module_row_id, :date_added, :date_renews, :date_last_renewed,
				:date_suspended, :date_canceled, :cancellation_reason,
				:status, :created_at, :updated_at, :created_by, :updated_by
			RETURNING code`

		params := r.params(ctx, svc)
		params["code_format"] = resolved
		params["code_start"] = format.Start
		params["code_increment"] = format.Increment

		rows, err := sqlx.NamedQueryContext(ctx, q, query, params)
		if err != nil {
			return markAllocatorConflict(err, serviceCodeIndex, "service insert failed")
		}
		defer rows.Close()

		if !rows.Next() {
			return ierr.NewError("no service code returned").
				Mark(ierr.ErrDatabase)
		}
		if err := rows.Scan(&svc.Code); err != nil {
			return ierr.WithError(err).
				WithHint("service code scan failed").
				Mark(ierr.ErrDatabase)
		}

		r.logger.Infow("created service",
			"service_id", svc.ID,
			"code", svc.Code,
			"code_format", resolved,
		)
		return nil
	})
}

func (r *serviceRepository) params(ctx context.Context, svc *service.Service) map[string]interface{} {
	return map[string]interface{}{
		"id":                  svc.ID,
		"company_id":          types.GetCompanyID(ctx),
		"client_id":           svc.ClientID,
		"package_id":          svc.PackageID,
		"pricing_id":          svc.PricingID,
		"parent_service_id":   svc.ParentServiceID,
		"service_status":      svc.ServiceStatus,
		"qty":                 svc.Qty,
		"override_price":      svc.OverridePrice,
		"override_currency":   svc.OverrideCurrency,
		"coupon_id":           svc.CouponID,
		"module_row_id":       svc.ModuleRowID,
		"date_added":          svc.DateAdded,
		"date_renews":         svc.DateRenews,
		"date_last_renewed":   svc.DateLastRenewed,
		"date_suspended":      svc.DateSuspended,
		"date_canceled":       svc.DateCanceled,
		"cancellation_reason": svc.CancellationReason,
		"status":              svc.Status,
		"created_at":          svc.CreatedAt,
		"updated_at":          time.Now().UTC(),
		"created_by":          svc.CreatedBy,
		"updated_by":          types.GetStaffID(ctx),
	}
}

func (r *serviceRepository) Get(ctx context.Context, id string) (*service.Service, error) {
	q := r.db.Querier(ctx)

	var svc service.Service
	err := q.GetContext(ctx, &svc,
		`SELECT * FROM services WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.WithError(service.ErrServiceNotFound).
				WithHintf("service %s not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("service query failed").
			Mark(ierr.ErrDatabase)
	}
	return &svc, nil
}

func (r *serviceRepository) Update(ctx context.Context, svc *service.Service) error {
	q := r.db.Querier(ctx)

	query := `
		UPDATE services SET
			pricing_id = :pricing_id,
			parent_service_id = :parent_service_id,
			service_status = :service_status,
			qty = :qty,
			override_price = :override_price,
			override_currency = :override_currency,
			coupon_id = :coupon_id,
			module_row_id = :module_row_id,
			date_renews = :date_renews,
			date_last_renewed = :date_last_renewed,
			date_suspended = :date_suspended,
			date_canceled = :date_canceled,
			cancellation_reason = :cancellation_reason,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, svc)); err != nil {
		return ierr.WithError(err).
			WithHint("service update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *serviceRepository) Delete(ctx context.Context, id string) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`UPDATE services SET status = $1 WHERE id = $2 AND company_id = $3`,
		types.StatusDeleted, id, types.GetCompanyID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("service delete failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *serviceRepository) ListByClient(ctx context.Context, clientID string) ([]*service.Service, error) {
	return r.list(ctx,
		`SELECT * FROM services
		 WHERE client_id = $1 AND company_id = $2 AND status != $3
		 ORDER BY date_added ASC`,
		clientID, types.GetCompanyID(ctx), types.StatusDeleted)
}

func (r *serviceRepository) ListChildren(ctx context.Context, parentServiceID string) ([]*service.Service, error) {
	return r.list(ctx,
		`SELECT * FROM services
		 WHERE parent_service_id = $1 AND company_id = $2 AND status != $3
		 ORDER BY date_added ASC`,
		parentServiceID, types.GetCompanyID(ctx), types.StatusDeleted)
}

// ListScheduledForCancellation returns active services whose cancellation
// date has arrived, across all companies, for the scheduler sweep.
func (r *serviceRepository) ListScheduledForCancellation(ctx context.Context, asOf time.Time) ([]*service.Service, error) {
	return r.list(ctx,
		`SELECT * FROM services
		 WHERE service_status IN ($1, $2)
		 AND date_canceled IS NOT NULL AND date_canceled <= $3
		 AND status != $4
		 ORDER BY date_canceled ASC`,
		types.ServiceStatusActive, types.ServiceStatusSuspended,
		asOf, types.StatusDeleted)
}

// ListRenewable returns pending and active services whose renewal date,
// less the look-ahead window, has arrived by asOf, across all companies.
func (r *serviceRepository) ListRenewable(ctx context.Context, asOf time.Time, aheadDays int) ([]*service.Service, error) {
	cutoff := asOf.AddDate(0, 0, aheadDays)
	return r.list(ctx,
		`SELECT * FROM services
		 WHERE service_status IN ($1, $2)
		 AND date_renews <= $3
		 AND status != $4
		 ORDER BY date_renews ASC`,
		types.ServiceStatusPending, types.ServiceStatusActive,
		cutoff, types.StatusDeleted)
}

func (r *serviceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*service.Service, error) {
	q := r.db.Querier(ctx)

	var services []*service.Service
	if err := q.SelectContext(ctx, &services, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("service list query failed").
			Mark(ierr.ErrDatabase)
	}
	return services, nil
}

func (r *serviceRepository) AddStateChange(ctx context.Context, change *service.StateChange) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`INSERT INTO service_state_changes (id, service_id, from_status, to_status, staff_id, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		change.ID, change.ServiceID, change.FromStatus, change.ToStatus,
		change.StaffID, change.Reason, change.CreatedAt)
	if err != nil {
		return ierr.WithError(err).
			WithHint("state change insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *serviceRepository) ListStateChanges(ctx context.Context, serviceID string) ([]*service.StateChange, error) {
	q := r.db.Querier(ctx)

	var changes []*service.StateChange
	err := q.SelectContext(ctx, &changes,
		`SELECT * FROM service_state_changes WHERE service_id = $1 ORDER BY created_at ASC`,
		serviceID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("state change query failed").
			Mark(ierr.ErrDatabase)
	}
	return changes, nil
}

func (r *serviceRepository) AddServiceInvoice(ctx context.Context, link *service.ServiceInvoice) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`INSERT INTO service_invoices (service_id, invoice_id, failed_attempts, consumed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (service_id, invoice_id) DO NOTHING`,
		link.ServiceID, link.InvoiceID, link.FailedAttempts, link.ConsumedAt)
	if err != nil {
		return ierr.WithError(err).
			WithHint("service invoice insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *serviceRepository) GetServiceInvoice(ctx context.Context, serviceID, invoiceID string) (*service.ServiceInvoice, error) {
	q := r.db.Querier(ctx)

	var link service.ServiceInvoice
	err := q.GetContext(ctx, &link,
		`SELECT * FROM service_invoices WHERE service_id = $1 AND invoice_id = $2`,
		serviceID, invoiceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("service invoice link not found").
				WithReportableDetails(map[string]any{
					"service_id": serviceID,
					"invoice_id": invoiceID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("service invoice query failed").
			Mark(ierr.ErrDatabase)
	}
	return &link, nil
}

func (r *serviceRepository) ListServiceInvoices(ctx context.Context, serviceID string) ([]*service.ServiceInvoice, error) {
	q := r.db.Querier(ctx)

	var links []*service.ServiceInvoice
	err := q.SelectContext(ctx, &links,
		`SELECT * FROM service_invoices WHERE service_id = $1`,
		serviceID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("service invoice list query failed").
			Mark(ierr.ErrDatabase)
	}
	return links, nil
}

func (r *serviceRepository) UpdateServiceInvoice(ctx context.Context, link *service.ServiceInvoice) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`UPDATE service_invoices SET failed_attempts = $1, consumed_at = $2
		 WHERE service_id = $3 AND invoice_id = $4`,
		link.FailedAttempts, link.ConsumedAt, link.ServiceID, link.InvoiceID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("service invoice update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
