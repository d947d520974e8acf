package postgres

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbill/stackbill/internal/domain/service"
	ierr "github.com/stackbill/stackbill/internal/errors"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/types"
)

func testService() *service.Service {
	added := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	return &service.Service{
		ID:            "svc_test1",
		ClientID:      "clnt_test1",
		PackageID:     "pkg_test1",
		PricingID:     "prc_test1",
		ServiceStatus: types.ServiceStatusPending,
		Qty:           1,
		DateAdded:     added,
		DateRenews:    added.AddDate(0, 1, 0),
		BaseModel:     types.BaseModel{CompanyID: "cmp_test", Status: types.StatusActive},
	}
}

// The code must come from the same single-statement allocation invoices
// use: GREATEST(MAX(existing for format), start) + increment through a
// derived table, returned by the insert itself.
func TestCreateWithCodeAllocatesSequence(t *testing.T) {
	client, mock, ctx := newMockClient(t)
	repo := NewServiceRepository(client, logger.L)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO services[\s\S]*GREATEST\([\s\S]*SELECT MAX\(seq\.code\) FROM \([\s\S]*\) AS seq[\s\S]*RETURNING code`).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow(int64(7)))
	mock.ExpectCommit()

	svc := testService()
	err := repo.CreateWithCode(ctx, svc, service.CodeFormat{
		Format:    "SRV-{year}-{num}",
		Start:     0,
		Increment: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), svc.Code)
	assert.Equal(t, "SRV-2026-{num}", svc.CodeFormat)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Losing the allocation race trips the unique code index; that must be
// marked as a retryable conflict just like invoice numbering.
func TestCreateWithCodeRetriesUniqueViolationOnCodeIndex(t *testing.T) {
	client, mock, ctx := newMockClient(t)
	repo := NewServiceRepository(client, logger.L)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO services`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_services_code"})
	mock.ExpectRollback()

	err := repo.CreateWithCode(ctx, testService(), service.CodeFormat{
		Format:    "SRV-{num}",
		Start:     0,
		Increment: 1,
	})

	require.Error(t, err)
	assert.True(t, ierr.IsTransactionConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
