package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/domain/transaction"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/types"
)

type transactionRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewTransactionRepository creates a new instance of transaction repository
func NewTransactionRepository(db postgres.IClient, logger *logger.Logger) transaction.Repository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	q := r.db.Querier(ctx)

	query := `
		INSERT INTO transactions (
			id, company_id, client_id, amount, currency, tx_status, date_added,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :company_id, :client_id, :amount, :currency, :tx_status, :date_added,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, txn)); err != nil {
		return ierr.WithError(err).
			WithHint("transaction insert failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *transactionRepository) params(ctx context.Context, txn *transaction.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"id":         txn.ID,
		"company_id": types.GetCompanyID(ctx),
		"client_id":  txn.ClientID,
		"amount":     txn.Amount,
		"currency":   txn.Currency,
		"tx_status":  txn.TxStatus,
		"date_added": txn.DateAdded,
		"status":     txn.Status,
		"created_at": txn.CreatedAt,
		"updated_at": time.Now().UTC(),
		"created_by": txn.CreatedBy,
		"updated_by": types.GetStaffID(ctx),
	}
}

func (r *transactionRepository) Get(ctx context.Context, id string) (*transaction.Transaction, error) {
	q := r.db.Querier(ctx)

	var txn transaction.Transaction
	err := q.GetContext(ctx, &txn,
		`SELECT * FROM transactions WHERE id = $1 AND company_id = $2 AND status != $3`,
		id, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError(fmt.Sprintf("transaction %s not found", id)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("transaction query failed").
			Mark(ierr.ErrDatabase)
	}

	if err := r.loadApplications(ctx, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) loadApplications(ctx context.Context, txn *transaction.Transaction) error {
	q := r.db.Querier(ctx)

	var apps []*transaction.Application
	err := q.SelectContext(ctx, &apps,
		`SELECT * FROM transaction_applications
		 WHERE transaction_id = $1 ORDER BY date_applied ASC`, txn.ID)
	if err != nil {
		return ierr.WithError(err).
			WithHint("transaction application query failed").
			Mark(ierr.ErrDatabase)
	}
	txn.Applications = apps
	return nil
}

func (r *transactionRepository) Update(ctx context.Context, txn *transaction.Transaction) error {
	q := r.db.Querier(ctx)

	query := `
		UPDATE transactions SET
			amount = :amount,
			tx_status = :tx_status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND company_id = :company_id`

	if _, err := q.NamedExecContext(ctx, query, r.params(ctx, txn)); err != nil {
		return ierr.WithError(err).
			WithHint("transaction update failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *transactionRepository) ListByClient(ctx context.Context, clientID string) ([]*transaction.Transaction, error) {
	q := r.db.Querier(ctx)

	var txns []*transaction.Transaction
	err := q.SelectContext(ctx, &txns,
		`SELECT * FROM transactions
		 WHERE client_id = $1 AND company_id = $2 AND status != $3
		 ORDER BY date_added ASC`,
		clientID, types.GetCompanyID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("transaction list query failed").
			Mark(ierr.ErrDatabase)
	}

	for _, txn := range txns {
		if err := r.loadApplications(ctx, txn); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

func (r *transactionRepository) ListApplicationsByInvoice(ctx context.Context, invoiceID string) ([]*transaction.Application, error) {
	q := r.db.Querier(ctx)

	var apps []*transaction.Application
	err := q.SelectContext(ctx, &apps,
		`SELECT ta.* FROM transaction_applications ta
		 JOIN transactions t ON t.id = ta.transaction_id
		 WHERE ta.invoice_id = $1
		 ORDER BY t.date_added ASC`, invoiceID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("transaction application query failed").
			Mark(ierr.ErrDatabase)
	}
	return apps, nil
}

func (r *transactionRepository) Apply(ctx context.Context, transactionID, invoiceID string, amount decimal.Decimal) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`INSERT INTO transaction_applications (transaction_id, invoice_id, amount, date_applied)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (transaction_id, invoice_id)
		 DO UPDATE SET amount = transaction_applications.amount + EXCLUDED.amount`,
		transactionID, invoiceID, amount, time.Now().UTC())
	if err != nil {
		return postgres.MarkConflict(ierr.WithError(err).
			WithHint("transaction apply failed").
			Mark(ierr.ErrDatabase))
	}
	return nil
}

func (r *transactionRepository) Unapply(ctx context.Context, transactionID, invoiceID string) error {
	q := r.db.Querier(ctx)

	_, err := q.ExecContext(ctx,
		`DELETE FROM transaction_applications WHERE transaction_id = $1 AND invoice_id = $2`,
		transactionID, invoiceID)
	if err != nil {
		return postgres.MarkConflict(ierr.WithError(err).
			WithHint("transaction unapply failed").
			Mark(ierr.ErrDatabase))
	}
	return nil
}
