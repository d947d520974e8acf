package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stackbill/stackbill/internal/domain/catalog"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type catalogRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewCatalogRepository creates a new instance of catalog repository
func NewCatalogRepository(db postgres.IClient, logger *logger.Logger) catalog.Repository {
	return &catalogRepository{
		db:     db,
		logger: logger,
	}
}

func (r *catalogRepository) CreatePackage(ctx context.Context, pkg *catalog.Package) error {
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.Querier(ctx)

		query := `
			INSERT INTO packages (
				id, company_id, name, module, single_term, taxable,
				status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :company_id, :name, :module, :single_term, :taxable,
				:status, :created_at, :updated_at, :created_by, :updated_by
			)`

		params := map[string]interface{}{
			"id":          pkg.ID,
			"company_id":  types.GetCompanyID(ctx),
			"name":        pkg.Name,
			"module":      pkg.Module,
			"single_term": pkg.SingleTerm,
			"taxable":     pkg.Taxable,
			"status":      pkg.Status,
			"created_at":  pkg.CreatedAt,
			"updated_at":  time.Now().UTC(),
			"created_by":  pkg.CreatedBy,
			"updated_by":  types.GetStaffID(ctx),
		}

		if _, err := q.NamedExecContext(ctx, query, params); err != nil {
			return ierr.WithError(err).
				WithHint("package insert failed").
				Mark(ierr.ErrDatabase)
		}

		for _, opt := range pkg.Options {
			opt.PackageID = pkg.ID
			_, err := q.ExecContext(ctx,
				`INSERT INTO package_options (id, package_id, name, price)
				 VALUES ($1, $2, $3, $4)`,
				opt.ID, opt.PackageID, opt.Name, opt.Price)
			if err != nil {
				return ierr.WithError(err).
					WithHint("package option insert failed").
					Mark(ierr.ErrDatabase)
			}
		}
		return nil
	})
}

func (r *catalogRepository) GetPackage(ctx context.Context, id string) (*catalog.Package, error) {
	q := r.db.Querier(ctx)

	var pkg catalog.Package
	err := q.GetContext(ctx, &pkg,
		`SELECT * FROM packages WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("package %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("package query failed").
			Mark(ierr.ErrDatabase)
	}

	options, err := r.ListOptions(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	pkg.Options = options
	return &pkg, nil
}

func (r *catalogRepository) CreatePricing(ctx context.Context, pricing *catalog.Pricing) error {
	q := r.db.Querier(ctx)

	query := `
		INSERT INTO pricings (
			id, package_id, term, period, price, price_renewal, price_transfer,
			setup_fee, cancel_fee, currency, prorata_day
		) VALUES (
			:id, :package_id, :term, :period, :price, :price_renewal, :price_transfer,
			:setup_fee, :cancel_fee, :currency, :prorata_day
		)`

	params := map[string]interface{}{
		"id":             pricing.ID,
		"package_id":     pricing.PackageID,
		"term":           pricing.Term,
		"period":         pricing.Period,
		"price":          pricing.Price,
		"price_renewal":  pricing.PriceRenewal,
		"price_transfer": pricing.PriceTransfer,
		"setup_fee":      pricing.SetupFee,
		"cancel_fee":     pricing.CancelFee,
		"currency":       pricing.Currency,
		"prorata_day":    pricing.ProrataDay,
	}

	if _, err := q.NamedExecContext(ctx, query, params); err != nil {
		return ierr.WithError(err).
			WithHint("pricing insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *catalogRepository) GetPricing(ctx context.Context, id string) (*catalog.Pricing, error) {
	q := r.db.Querier(ctx)

	var pricing catalog.Pricing
	err := q.GetContext(ctx, &pricing,
		`SELECT * FROM pricings WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("pricing %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("pricing query failed").
			Mark(ierr.ErrDatabase)
	}
	return &pricing, nil
}

func (r *catalogRepository) ListOptions(ctx context.Context, packageID string) ([]*catalog.Option, error) {
	q := r.db.Querier(ctx)

	var options []*catalog.Option
	err := q.SelectContext(ctx, &options,
		`SELECT * FROM package_options WHERE package_id = $1 ORDER BY name ASC`, packageID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("package option query failed").
			Mark(ierr.ErrDatabase)
	}
	return options, nil
}
