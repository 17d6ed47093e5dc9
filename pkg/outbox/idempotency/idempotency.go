// Package idempotency remembers which order events a consumer already
// handled so redeliveries from Pub/Sub are skipped.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type markStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	EventKey(consumer, eventID string) string
}

// Manager keeps one redis mark per (consumer, event id) for ttl.
type Manager struct {
	store markStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store markStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMark claims eventID for consumer. It reports true when the event
// was already claimed, in which case the caller must not handle it again.
func (m *Manager) CheckAndMark(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// Forget drops the claim after a failed attempt so redelivery is processed.
func (m *Manager) Forget(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return m.store.EventKey(consumer, eventID.String()), nil
}
