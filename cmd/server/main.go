package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/currency"
	"github.com/stackbill/stackbill/internal/domain/settings"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/notification"
	"github.com/stackbill/stackbill/internal/postgres"
	"github.com/stackbill/stackbill/internal/provisioning"
	repository "github.com/stackbill/stackbill/internal/repository/postgres"
	"github.com/stackbill/stackbill/internal/service"
	"github.com/stackbill/stackbill/internal/types"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Postgres
			postgres.NewDB,
			postgres.NewClient,

			// Repositories
			repository.NewInvoiceRepository,
			repository.NewServiceRepository,
			repository.NewRecurringRepository,
			repository.NewTransactionRepository,
			repository.NewCouponRepository,
			repository.NewCatalogRepository,
			repository.NewClientRepository,
			repository.NewTaxRuleRepository,

			// Collaborators
			provideSettingsProvider,
			provideModuleRegistry,
			provideCurrencyConverter,
			provideNotificationSink,

			// Services
			service.NewServiceParams,
			service.NewPricingService,
			service.NewInvoiceService,
			service.NewRecurringService,
			service.NewLifecycleService,
		),
		fx.Invoke(startScheduler),
	)
	app.Run()
}

// provideSettingsProvider wraps the settings repository in a short-lived
// cache so hot keys don't hit the database on every invoice.
func provideSettingsProvider(db postgres.IClient, log *logger.Logger) settings.Provider {
	return settings.NewCachedProvider(repository.NewSettingsRepository(db, log))
}

// provideModuleRegistry returns the provisioning registry. Deployments
// register their modules here before the scheduler starts.
func provideModuleRegistry() *provisioning.Registry {
	return provisioning.NewRegistry()
}

func provideCurrencyConverter() currency.Converter {
	return currency.IdentityConverter{}
}

func provideNotificationSink(log *logger.Logger) notification.Sink {
	return &notification.LoggingSink{Logger: log}
}

// startScheduler runs the recurring invoice pass, the service renewal
// invoicing pass and the scheduled cancellation sweep on the configured
// cron cadence.
func startScheduler(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	log *logger.Logger,
	recurringService service.RecurringService,
	lifecycleService service.LifecycleService,
) error {
	runner := cron.New()

	_, err := runner.AddFunc(cfg.Billing.SchedulerCron, func() {
		ctx := types.SetCompanyID(context.Background(), types.DefaultCompanyID)
		now := time.Now().UTC()

		if err := recurringService.Run(ctx, now); err != nil {
			log.Errorw("recurring invoice pass failed", "error", err)
		}
		if err := lifecycleService.InvoiceRenewals(ctx, now); err != nil {
			log.Errorw("renewal invoicing pass failed", "error", err)
		}
		if err := lifecycleService.RunScheduledCancellations(ctx, now); err != nil {
			log.Errorw("scheduled cancellation sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting billing scheduler", "cron", cfg.Billing.SchedulerCron)
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := runner.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			log.Infow("billing scheduler stopped")
			return nil
		},
	})
	return nil
}
