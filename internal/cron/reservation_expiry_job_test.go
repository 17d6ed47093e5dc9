package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroquest/storefront-backend/pkg/logger"
)

type fakeExpirer struct {
	calls   int
	ttl     time.Duration
	limit   int
	expired int
	err     error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, ttl time.Duration, limit int) (int, error) {
	f.calls++
	f.ttl = ttl
	f.limit = limit
	return f.expired, f.err
}

func newExpiryJob(t *testing.T, expirer *fakeExpirer, ttl time.Duration) Job {
	t.Helper()
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: expirer,
		TTL:    ttl,
	})
	require.NoError(t, err)
	return job
}

func TestReservationExpiryJobDisabledWithoutTTL(t *testing.T) {
	expirer := &fakeExpirer{}
	job := newExpiryJob(t, expirer, 0)

	expired, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Zero(t, expirer.calls)
}

func TestReservationExpiryJobExpiresWithTTL(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	job := newExpiryJob(t, expirer, 30*time.Minute)

	expired, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, expired)
	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, 30*time.Minute, expirer.ttl)
	assert.Equal(t, defaultExpiryBatch, expirer.limit)
	assert.Equal(t, "reservation-expiry", job.Name())
}

func TestReservationExpiryJobPropagatesError(t *testing.T) {
	expirer := &fakeExpirer{expired: 2, err: errors.New("db down")}
	job := newExpiryJob(t, expirer, time.Hour)

	expired, err := job.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, expired, "orders expired before the failure still count")
}

func TestReservationExpiryJobValidates(t *testing.T) {
	_, err := NewReservationExpiryJob(ReservationExpiryJobParams{Orders: &fakeExpirer{}})
	assert.Error(t, err)
	_, err = NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Orders: &fakeExpirer{},
		TTL:    -time.Second,
	})
	assert.Error(t, err)
}
