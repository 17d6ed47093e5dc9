package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name  string
	items int
	err   error
	runs  int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) (int, error) {
	j.runs++
	return j.items, j.err
}

func TestRunCycleRunsEveryJobAndCombinesFailures(t *testing.T) {
	expiry := &testJob{name: "reservation-expiry", items: 3, err: errors.New("db down")}
	retention := &testJob{name: "outbox-retention", err: errors.New("timeout")}
	lock := &fakeLock{}
	svc := newCronService(t, lock, nil, NewSchedule().Every(expiry, 0).Every(retention, 0))

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 1, expiry.runs)
	assert.Equal(t, 1, retention.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleRespectsCadence(t *testing.T) {
	expiry := &testJob{name: "reservation-expiry"}
	retention := &testJob{name: "outbox-retention"}
	svc := newCronService(t, &fakeLock{}, nil, NewSchedule().Every(expiry, 0).Every(retention, 24*time.Hour))
	now := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.runCycle(context.Background()))
	now = now.Add(5 * time.Minute)
	require.NoError(t, svc.runCycle(context.Background()))
	now = now.Add(24 * time.Hour)
	require.NoError(t, svc.runCycle(context.Background()))

	assert.Equal(t, 3, expiry.runs)
	assert.Equal(t, 2, retention.runs)
}

func TestRunCycleSkipsWhileLeaseHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := &testJob{name: "reservation-expiry"}
	svc := newCronService(t, &fakeLock{held: true}, metrics.NewCronJobMetrics(reg), NewSchedule().Every(job, 0))

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var skipped float64
	for _, mf := range mfs {
		if mf.GetName() == "rq_cron_cycles_skipped_total" {
			skipped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), skipped)
}

func TestRunCycleReportsLeaseErrors(t *testing.T) {
	job := &testJob{name: "reservation-expiry"}
	svc := newCronService(t, &fakeLock{err: errors.New("redis down")}, nil, NewSchedule().Every(job, 0))

	assert.Error(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestNewServiceRequiresJobs(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Lock:     &fakeLock{},
		Schedule: NewSchedule().Every(nil, 0),
	})
	assert.Error(t, err)
}

func newCronService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, schedule *Schedule) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Schedule: schedule,
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return svc
}
