package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stackbill/stackbill/internal/domain/client"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type clientRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewClientRepository creates a new instance of client repository
func NewClientRepository(db postgres.IClient, logger *logger.Logger) client.Repository {
	return &clientRepository{
		db:     db,
		logger: logger,
	}
}

func (r *clientRepository) Create(ctx context.Context, c *client.Client) error {
	q := r.db.Querier(ctx)

	query := `
		INSERT INTO clients (
			id, company_id, group_id, name, email, country, state, currency,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :company_id, :group_id, :name, :email, :country, :state, :currency,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, c)); err != nil {
		return ierr.WithError(err).
			WithHint("client insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *clientRepository) params(ctx context.Context, c *client.Client) map[string]interface{} {
	return map[string]interface{}{
		"id":         c.ID,
		"company_id": types.GetCompanyID(ctx),
		"group_id":   c.GroupID,
		"name":       c.Name,
		"email":      c.Email,
		"country":    c.Country,
		"state":      c.State,
		"currency":   c.Currency,
		"status":     c.Status,
		"created_at": c.CreatedAt,
		"updated_at": time.Now().UTC(),
		"created_by": c.CreatedBy,
		"updated_by": types.GetStaffID(ctx),
	}
}

func (r *clientRepository) Get(ctx context.Context, id string) (*client.Client, error) {
	q := r.db.Querier(ctx)

	var c client.Client
	err := q.GetContext(ctx, &c,
		`SELECT * FROM clients WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("client %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("client query failed").
			Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *clientRepository) Update(ctx context.Context, c *client.Client) error {
	q := r.db.Querier(ctx)

	query := `
		UPDATE clients SET
			group_id = :group_id,
			name = :name,
			email = :email,
			country = :country,
			state = :state,
			currency = :currency,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, c)); err != nil {
		return ierr.WithError(err).
			WithHint("client update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
