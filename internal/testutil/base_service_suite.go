package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/domain/catalog"
	"github.com/stackbill/stackbill/internal/domain/client"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/invoice"
	"github.com/stackbill/stackbill/internal/domain/recurring"
	"github.com/stackbill/stackbill/internal/domain/service"
	"github.com/stackbill/stackbill/internal/domain/taxrule"
	"github.com/stackbill/stackbill/internal/domain/transaction"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/provisioning"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	InvoiceRepo     invoice.Repository
	ServiceRepo     service.Repository
	RecurringRepo   recurring.Repository
	TransactionRepo transaction.Repository
	CouponRepo      coupon.Repository
	CatalogRepo     catalog.Repository
	ClientRepo      client.Repository
	TaxRuleRepo     taxrule.Repository

	// concrete handles for store-specific test helpers
	InvoiceStore     *InMemoryInvoiceStore
	ServiceStore     *InMemoryServiceStore
	RecurringStore   *InMemoryRecurringStore
	TransactionStore *InMemoryTransactionStore
	CouponStore      *InMemoryCouponStore
	CatalogStore     *InMemoryCatalogStore
	ClientStore      *InMemoryClientStore
	TaxRuleStore     *InMemoryTaxRuleStore
}

// BaseServiceTestSuite provides common functionality for all service test
// suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	stores   Stores
	settings *InMemorySettingsStore
	registry *provisioning.Registry
	sink     *RecordingSink
	db       postgres.IClient
	logger   *logger.Logger
	config   *config.Configuration
	now      time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	var err error
	s.logger, err = logger.NewLogger()
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
	s.config = config.GetDefaultConfig()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.setupStores()
	s.settings = NewInMemorySettingsStore()
	s.registry = provisioning.NewRegistry()
	s.sink = NewRecordingSink()
	s.db = NewMockPostgresClient()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupStores() {
	invoiceStore := NewInMemoryInvoiceStore()
	serviceStore := NewInMemoryServiceStore()
	recurringStore := NewInMemoryRecurringStore()
	transactionStore := NewInMemoryTransactionStore()
	couponStore := NewInMemoryCouponStore()
	catalogStore := NewInMemoryCatalogStore()
	clientStore := NewInMemoryClientStore()
	taxRuleStore := NewInMemoryTaxRuleStore()

	s.stores = Stores{
		InvoiceRepo:     invoiceStore,
		ServiceRepo:     serviceStore,
		RecurringRepo:   recurringStore,
		TransactionRepo: transactionStore,
		CouponRepo:      couponStore,
		CatalogRepo:     catalogStore,
		ClientRepo:      clientStore,
		TaxRuleRepo:     taxRuleStore,

		InvoiceStore:     invoiceStore,
		ServiceStore:     serviceStore,
		RecurringStore:   recurringStore,
		TransactionStore: transactionStore,
		CouponStore:      couponStore,
		CatalogStore:     catalogStore,
		ClientStore:      clientStore,
		TaxRuleStore:     taxRuleStore,
	}
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.InvoiceStore.Clear()
	s.stores.ServiceStore.Clear()
	s.stores.RecurringStore.Clear()
	s.stores.TransactionStore.Clear()
	s.stores.CouponStore.Clear()
	s.stores.CatalogStore.Clear()
	s.stores.ClientStore.Clear()
	s.stores.TaxRuleStore.Clear()
	s.settings.Clear()
	s.sink.Clear()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetStores returns the test stores
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetSettings returns the in-memory settings provider
func (s *BaseServiceTestSuite) GetSettings() *InMemorySettingsStore {
	return s.settings
}

// GetRegistry returns the provisioning module registry
func (s *BaseServiceTestSuite) GetRegistry() *provisioning.Registry {
	return s.registry
}

// GetSink returns the recording notification sink
func (s *BaseServiceTestSuite) GetSink() *RecordingSink {
	return s.sink
}

// GetDB returns the mock postgres client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetNow returns the time captured at test setup
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
