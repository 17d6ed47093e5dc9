package main

import (
	"github.com/retroquest/storefront-backend/internal/notifications"
	"github.com/retroquest/storefront-backend/pkg/bootstrap"
	"github.com/retroquest/storefront-backend/pkg/outbox/idempotency"
)

func main() {
	proc := bootstrap.Start("worker")
	cfg := proc.Config
	ctx, stop := proc.Context()
	defer stop()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)
	pubsubClient := proc.PubSub(ctx)

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	proc.Must("build consumer dedupe", err)

	proc.Must("notifications subscription", pubsubClient.CheckSubscription(ctx, cfg.PubSub.NotificationsSubscription))
	subscription := pubsubClient.NotificationsSubscriber()

	consumer, err := notifications.NewConsumer(notifications.NewRepository(dbClient.DB()), subscription, dedupe, proc.Logger)
	proc.Must("build notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger:   proc.Logger,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: consumer,
	})
	proc.Must("build worker", err)

	ctx = proc.Logger.WithField(ctx, "subscription", cfg.PubSub.NotificationsSubscription)
	proc.Run(ctx, service.Run)
}
