package service

import (
	"github.com/stackbill/stackbill/internal/currency"
	"github.com/stackbill/stackbill/internal/testutil"
)

// newTestServiceParams wires ServiceParams from the shared test suite's
// in-memory stores and collaborators.
func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return ServiceParams{
		Logger: s.GetLogger(),
		Config: s.GetConfig(),
		DB:     s.GetDB(),

		InvoiceRepo:     stores.InvoiceRepo,
		ServiceRepo:     stores.ServiceRepo,
		RecurringRepo:   stores.RecurringRepo,
		TransactionRepo: stores.TransactionRepo,
		CouponRepo:      stores.CouponRepo,
		CatalogRepo:     stores.CatalogRepo,
		ClientRepo:      stores.ClientRepo,
		TaxRuleRepo:     stores.TaxRuleRepo,

		Settings:  s.GetSettings(),
		Modules:   s.GetRegistry(),
		Converter: currency.IdentityConverter{},
		Sink:      s.GetSink(),
	}
}
