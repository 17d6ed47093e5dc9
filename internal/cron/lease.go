package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Lock keeps two cron workers from sweeping reservations at the same time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) (bool, error)
}

// Lease is a Lock held in redis under rq:lease:<name>. The owner token names
// the host so a stuck lease can be traced to the worker that took it.
type Lease struct {
	store leaseStore
	name  string
	ttl   time.Duration
	owner string
	held  bool
}

func NewLease(store leaseStore, name string, ttl time.Duration) (*Lease, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	if name == "" {
		return nil, errors.New("lease name required")
	}
	if ttl <= 0 {
		return nil, errors.New("lease ttl must be positive")
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "cron"
	}
	return &Lease{store: store, name: name, ttl: ttl, owner: host + "/" + uuid.NewString()}, nil
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.AcquireLease(ctx, l.name, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.name, err)
	}
	l.held = ok
	return ok, nil
}

// Release gives the lease back. Losing it to expiry in the meantime is not
// an error; the next cycle simply competes for it again.
func (l *Lease) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.store.ReleaseLease(ctx, l.name, l.owner); err != nil {
		return fmt.Errorf("release lease %s: %w", l.name, err)
	}
	return nil
}
