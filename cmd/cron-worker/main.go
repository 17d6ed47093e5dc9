package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/retroquest/storefront-backend/internal/cron"
	"github.com/retroquest/storefront-backend/internal/orders"
	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/pkg/bootstrap"
	"github.com/retroquest/storefront-backend/pkg/metrics"
	"github.com/retroquest/storefront-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.Context()
	defer stop()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	storeMetrics := metrics.NewStorefrontMetrics(prometheus.DefaultRegisterer)
	lease, err := cron.NewLease(redisClient, "cron-worker:"+envName(cfg.App.Env), 2*cfg.Cron.Interval)
	proc.Must("build cron lease", err)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository:     orders.NewRepository(dbClient.DB()),
		Tx:             dbClient,
		Ledger:         stock.NewLedger(dbClient.DB(), storeMetrics),
		Outbox:         outbox.NewService(outboxRepo, logg),
		Metrics:        storeMetrics,
		Logger:         logg,
		TrackingPrefix: cfg.Checkout.TrackingPrefix,
	})
	proc.Must("build orders service", err)

	schedule := cron.NewSchedule()
	if cfg.Checkout.ReservationExpiryEnabled() {
		expiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
			Logger:    logg,
			Orders:    orderSvc,
			TTL:       cfg.Checkout.ReservationTTL,
			BatchSize: cfg.Cron.ExpiryBatchSize,
		})
		proc.Must("build reservation expiry job", err)
		schedule.Every(expiry, 0)
	} else {
		logg.Info(ctx, "reservation expiry disabled")
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             dbClient,
		Outbox:         outboxRepo,
		DeadLetters:    outbox.NewDLQRepository(dbClient.DB()),
		PublishedDays:  cfg.Outbox.RetentionDays,
		DeadLetterDays: cfg.Outbox.DeadLetterRetentionDays,
	})
	proc.Must("build outbox retention job", err)
	schedule.Every(retention, cfg.Cron.RetentionEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lease,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	proc.Must("build cron service", err)

	proc.Run(ctx, service.Run)
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
