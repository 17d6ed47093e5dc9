package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	dedupeConsumer        = "outbox-publisher"
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// deduper remembers order events already handed to Pub/Sub so a batch that
// published but failed to commit its bookkeeping is not delivered twice.
type deduper interface {
	CheckAndMark(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterRepository interface {
	DeadLetter(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          dbClient
	PubSub      pubSubClient
	Repository  outboxRepository
	Registry    eventResolver
	DeadLetters deadLetterRepository
	Dedupe      deduper
	// Publishers overrides the Pub/Sub publisher lookup, mainly for tests.
	Publishers func(topic string) publisher
}

// Service relays committed order events from outbox_events to Pub/Sub.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	registry     eventResolver
	deadLetters  deadLetterRepository
	dedupe       deduper
	publishers   func(topic string) publisher
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	jitter       *rand.Rand
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	}

	publishers := params.Publishers
	if publishers == nil {
		publishers = orderedPublishers(params.PubSub)
	}
	outboxCfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		deadLetters:  params.DeadLetters,
		dedupe:       params.Dedupe,
		publishers:   publishers,
		batchSize:    orDefault(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(orDefault(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Run polls until ctx is cancelled. Full batches are followed immediately by
// the next one; empty or failed batches back off.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		summary, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(wait*2, maxIdleBackoff)
		case summary.fetched > 0:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}

		if err := s.sleep(ctx, wait+time.Duration(s.jitter.Int63n(int64(jitterWindow)))); err != nil {
			return err
		}
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// orderedPublishers caches one publisher per topic with message ordering on,
// so events sharing an order id reach subscribers in commit order.
func orderedPublishers(client pubSubClient) func(topic string) publisher {
	cache := make(map[string]publisher)
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		raw.EnableMessageOrdering = true
		pub := &gcpPublisher{raw}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
