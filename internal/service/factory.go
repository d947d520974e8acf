package service

import (
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/currency"
	"github.com/stackbill/stackbill/internal/domain/catalog"
	"github.com/stackbill/stackbill/internal/domain/client"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/recurring"
	srv "github.com/stackbill/stackbill/internal/domain/service"
	"github.com/stackbill/stackbill/internal/domain/settings"
	"github.com/stackbill/stackbill/internal/domain/taxrule"
	"github.com/stackbill/stackbill/internal/domain/transaction"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/provisioning"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	InvoiceRepo     invoice.Repository
	ServiceRepo     srv.Repository
	RecurringRepo   recurring.Repository
	TransactionRepo transaction.Repository
	CouponRepo      coupon.Repository
	CatalogRepo     catalog.Repository
	ClientRepo      client.Repository
	TaxRuleRepo     taxrule.Repository

	// Collaborators
	Settings  settings.Provider
	Modules   *provisioning.Registry
	Converter currency.Converter
	Sink      notification.Sink
}

// NewServiceParams assembles the shared service dependencies for dependency
// injection
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	invoiceRepo invoice.Repository,
	serviceRepo srv.Repository,
	recurringRepo recurring.Repository,
	transactionRepo transaction.Repository,
	couponRepo coupon.Repository,
	catalogRepo catalog.Repository,
	clientRepo client.Repository,
	taxRuleRepo taxrule.Repository,
	settings settings.Provider,
	modules *provisioning.Registry,
	converter currency.Converter,
	sink notification.Sink,
) ServiceParams {
	return ServiceParams{
		Logger:          logger,
		Config:          config,
		DB:              db,
		InvoiceRepo:     invoiceRepo,
		ServiceRepo:     serviceRepo,
		RecurringRepo:   recurringRepo,
		TransactionRepo: transactionRepo,
		CouponRepo:      couponRepo,
		CatalogRepo:     catalogRepo,
		ClientRepo:      clientRepo,
		TaxRuleRepo:     taxRuleRepo,
		Settings:        settings,
		Modules:         modules,
		Converter:       converter,
		Sink:            sink,
	}
}
