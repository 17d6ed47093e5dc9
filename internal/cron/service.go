package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service ticks every Interval and, while holding the lease, runs whatever
// the schedule says is due.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Schedule == nil || params.Schedule.Len() == 0 {
		return nil, errors.New("schedule has no jobs")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		schedule: params.Schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle runs every due job even when an earlier one fails and returns
// the combined failures.
func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.metrics.IncSkipped(metrics.CronSkipLeaseError)
		return err
	}
	if !locked {
		s.metrics.IncSkipped(metrics.CronSkipLeaseHeld)
		s.logg.Info(ctx, "cron lease held by another worker, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lease", relErr)
		}
	}()

	var errs error
	for _, job := range s.schedule.Due(s.now()) {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	items, err := job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, items, err)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": took.Milliseconds(),
		"items":       items,
	})
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(jobCtx, "cron job completed")
	return nil
}
