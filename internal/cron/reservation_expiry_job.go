package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/retroquest/storefront-backend/pkg/logger"
)

const defaultExpiryBatch = 100

type staleOrderExpirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// ReservationExpiryJobParams configure the stale reservation sweeper.
type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    staleOrderExpirer
	TTL       time.Duration
	BatchSize int
}

// NewReservationExpiryJob builds the job that cancels unpaid orders older
// than TTL, returning their reserved stock. A zero TTL yields a job that
// does nothing.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.TTL < 0 {
		return nil, fmt.Errorf("ttl must be >= 0")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &reservationExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    params.TTL,
		batch:  batch,
	}, nil
}

type reservationExpiryJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
	ttl    time.Duration
	batch  int
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) (int, error) {
	if j.ttl <= 0 {
		return 0, nil
	}
	expired, err := j.orders.ExpireStale(ctx, j.ttl, j.batch)
	if err != nil {
		return expired, fmt.Errorf("expire stale orders: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stale reservations returned to stock")
	}
	return expired, nil
}
