package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLeases struct {
	owners map[string]string
	err    error
}

func (m *memoryLeases) AcquireLease(_ context.Context, name, owner string, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.owners[name]; taken {
		return false, nil
	}
	m.owners[name] = owner
	return true, nil
}

func (m *memoryLeases) ReleaseLease(_ context.Context, name, owner string) (bool, error) {
	if m.owners[name] != owner {
		return false, nil
	}
	delete(m.owners, name)
	return true, nil
}

func TestLeaseExcludesSecondWorker(t *testing.T) {
	store := &memoryLeases{owners: map[string]string{}}
	first, err := NewLease(store, "cron-worker:prod", time.Minute)
	require.NoError(t, err)
	second, err := NewLease(store, "cron-worker:prod", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.owner, second.owner)
	assert.True(t, strings.Contains(first.owner, "/"))

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	assert.Equal(t, first.owner, store.owners["cron-worker:prod"], "a worker that never held the lease cannot free it")

	require.NoError(t, first.Release(context.Background()))
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeaseWrapsStoreErrors(t *testing.T) {
	lease, err := NewLease(&memoryLeases{err: errors.New("connection refused")}, "cron-worker:prod", time.Minute)
	require.NoError(t, err)

	_, err = lease.Acquire(context.Background())
	assert.ErrorContains(t, err, "acquire lease cron-worker:prod")
}

func TestNewLeaseValidates(t *testing.T) {
	store := &memoryLeases{owners: map[string]string{}}
	_, err := NewLease(nil, "x", time.Minute)
	assert.Error(t, err)
	_, err = NewLease(store, "", time.Minute)
	assert.Error(t, err)
	_, err = NewLease(store, "x", 0)
	assert.Error(t, err)
}

func TestScheduleDueHonoursCadence(t *testing.T) {
	sweep := &testJob{name: "reservation-expiry"}
	cleanup := &testJob{name: "outbox-retention"}
	schedule := NewSchedule().Every(sweep, 0).Every(cleanup, time.Hour).Every(nil, time.Minute)
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, schedule.Len())
	assert.Equal(t, []Job{sweep, cleanup}, schedule.Due(start))
	assert.Equal(t, []Job{sweep}, schedule.Due(start.Add(59*time.Minute)))
	assert.Equal(t, []Job{sweep, cleanup}, schedule.Due(start.Add(time.Hour)))
}
