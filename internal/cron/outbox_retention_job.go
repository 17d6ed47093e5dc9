package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/logger"
)

const (
	defaultPublishedRetention  = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      publishedPurger
	DeadLetters deadLetterPurger
	// PublishedDays and DeadLetterDays fall back to 30 and 90.
	PublishedDays  int
	DeadLetterDays int
}

// NewOutboxRetentionJob trims delivered order events and old dead letters.
// Unpublished rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	case params.DeadLetters == nil:
		return nil, errors.New("dead letter repository required")
	}
	return &outboxRetentionJob{
		logg:          params.Logger,
		db:            params.DB,
		outbox:        params.Outbox,
		deadLetters:   params.DeadLetters,
		published:     days(params.PublishedDays, defaultPublishedRetention),
		deadLetterAge: days(params.DeadLetterDays, defaultDeadLetterRetention),
		now:           time.Now,
	}, nil
}

func days(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	outbox        publishedPurger
	deadLetters   deadLetterPurger
	published     time.Duration
	deadLetterAge time.Duration
	now           func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	var published, parked int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if published, err = j.outbox.DeletePublishedBefore(ctx, tx, now.Add(-j.published)); err != nil {
			return fmt.Errorf("published events: %w", err)
		}
		if parked, err = j.deadLetters.PurgeBefore(ctx, tx, now.Add(-j.deadLetterAge)); err != nil {
			return fmt.Errorf("dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_deleted":    published,
		"dead_letters_deleted": parked,
	}), "outbox retention cleanup complete")
	return int(published + parked), nil
}
