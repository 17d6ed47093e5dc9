package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retroquest/storefront-backend/api/routes"
	"github.com/retroquest/storefront-backend/internal/cart"
	"github.com/retroquest/storefront-backend/internal/checkout"
	"github.com/retroquest/storefront-backend/internal/notifications"
	"github.com/retroquest/storefront-backend/internal/orders"
	products "github.com/retroquest/storefront-backend/internal/products"
	"github.com/retroquest/storefront-backend/internal/stock"
	"github.com/retroquest/storefront-backend/pkg/bootstrap"
	"github.com/retroquest/storefront-backend/pkg/metrics"
	"github.com/retroquest/storefront-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.Context()
	defer stop()

	dbClient := proc.Database(ctx)
	redisClient := proc.Redis(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := metrics.NewStorefrontMetrics(registry)

	conn := dbClient.DB()
	ledger := stock.NewLedger(conn, storeMetrics)
	productRepo := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	cartSvc, err := cart.NewService(cartRepo, dbClient, productRepo, ledger)
	proc.Must("build cart service", err)
	checkoutSvc, err := checkout.NewService(checkout.Params{
		Tx:            dbClient,
		Carts:         cartRepo,
		Orders:        orderRepo,
		Products:      productRepo,
		Ledger:        ledger,
		Outbox:        events,
		Metrics:       storeMetrics,
		Logger:        logg,
		ShippingCents: cfg.Checkout.ShippingFeeCents,
	})
	proc.Must("build checkout service", err)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository:     orderRepo,
		Tx:             dbClient,
		Ledger:         ledger,
		Outbox:         events,
		Metrics:        storeMetrics,
		Logger:         logg,
		TrackingPrefix: cfg.Checkout.TrackingPrefix,
	})
	proc.Must("build orders service", err)
	productSvc, err := products.NewService(productRepo, ledger)
	proc.Must("build product service", err)

	notificationSvc, err := notifications.NewService(notifications.NewRepository(conn))
	proc.Must("build notifications service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	instance := os.Getenv("DYNO")
	if instance == "" {
		instance = "local"
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:       dbClient,
			Redis:    redisClient,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Cart:     cartSvc,
			Checkout: checkoutSvc,
			Orders:   orderSvc,
			Products: productSvc,

			Notifications: notificationSvc,
			DeadLetters:   outbox.NewDLQRepository(conn),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{"addr": server.Addr, "instance": instance})
	proc.Run(ctx, func(ctx context.Context) error {
		serveErr := make(chan error, 1)
		go func() { serveErr <- server.ListenAndServe() }()

		select {
		case err := <-serveErr:
			return err
		case <-ctx.Done():
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			return err
		}
		if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
