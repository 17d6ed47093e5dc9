package main

import (
	"github.com/retroquest/storefront-backend/pkg/bootstrap"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/idempotency"
	"github.com/retroquest/storefront-backend/pkg/outbox/registry"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	cfg := proc.Config
	ctx, stop := proc.Context()
	defer stop()

	dbClient := proc.Database(ctx)
	pubsubClient := proc.PubSub(ctx)
	redisClient := proc.Redis(ctx)

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	proc.Must("build publish dedupe", err)
	events, err := registry.NewEventRegistry(cfg.PubSub)
	proc.Must("build event registry", err)

	relay, err := NewService(ServiceParams{
		Config:      cfg,
		Logger:      proc.Logger,
		DB:          dbClient,
		PubSub:      pubsubClient,
		Repository:  outbox.NewRepository(dbClient.DB()),
		Registry:    events,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Dedupe:      dedupe,
	})
	proc.Must("build outbox relay", err)

	proc.Run(ctx, relay.Run)
}
