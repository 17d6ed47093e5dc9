// Package bootstrap holds the start-up and tear-down steps every storefront
// binary shares: env loading, config, logging, backing clients and signals.
package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/migrate"
	"github.com/retroquest/storefront-backend/pkg/pubsub"
	"github.com/retroquest/storefront-backend/pkg/redis"
)

type closer struct {
	name  string
	close func() error
}

// Process is one running binary. Clients opened through it are closed in
// reverse order by Shutdown, and Must exits through Shutdown too.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
	exit    func(int)
}

// Start loads .env and config, then builds the configured logger. A bad
// config exits the process.
func Start(kind string) *Process {
	p := &Process{
		Kind:   kind,
		Logger: logger.New(logger.Options{ServiceName: kind}),
		exit:   os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		p.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	p.Must("load config", err)
	cfg.Service.Kind = kind
	p.Config = cfg
	p.Logger = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return p
}

// Context is cancelled on SIGINT or SIGTERM and carries env and service kind
// as log fields.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":          p.Config.App.Env,
		"service_kind": p.Kind,
	})
	return ctx, stop
}

// Must logs err against step and exits non-zero after closing what is open.
func (p *Process) Must(step string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), step+" failed", err)
	_ = p.Shutdown()
	p.exit(1)
}

// OnShutdown registers fn to run during Shutdown.
func (p *Process) OnShutdown(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Shutdown closes registered clients newest first and reports every failure.
func (p *Process) Shutdown() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			p.Logger.Error(p.Logger.WithField(context.Background(), "client", c.name), "close failed", err)
			errs = multierr.Append(errs, err)
		}
	}
	p.closers = nil
	return errs
}

// Database connects to the store and, in dev, applies pending migrations.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	p.Must("connect database", err)
	p.OnShutdown("database", client.Close)
	p.Must("dev migrations", migrate.MaybeRunDev(ctx, p.Config, p.Logger, client))
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	p.Must("connect redis", err)
	p.OnShutdown("redis", client.Close)
	return client
}

func (p *Process) PubSub(ctx context.Context) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	p.Must("connect pubsub", err)
	p.OnShutdown("pubsub", client.Close)
	return client
}

// Run blocks on run until ctx is cancelled, then shuts down. A cancellation
// is a clean exit; any other error exits non-zero.
func (p *Process) Run(ctx context.Context, run func(context.Context) error) {
	p.Logger.Info(ctx, "starting "+p.Kind)
	err := run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	p.Must(p.Kind+" run", err)
	if err := p.Shutdown(); err != nil {
		p.exit(1)
		return
	}
	p.Logger.Info(ctx, p.Kind+" stopped")
}
