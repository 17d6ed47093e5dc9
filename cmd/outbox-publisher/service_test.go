package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/payloads"
	"github.com/retroquest/storefront-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first := orderEvent(t, uuid.New(), enums.EventOrderCreated, 0)
	second := orderEvent(t, uuid.New(), enums.EventOrderCreated, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{errs: []error{errors.New("transient"), nil}}
	svc := newTestService(t, repo, pub, &fakeDeadLetters{}, 5)

	summary, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if summary.fetched != 2 || summary.retried != 1 || summary.published != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if len(pub.resumed) != 1 || pub.resumed[0] != first.AggregateID.String() {
		t.Fatalf("expected ordering key resumed after failure, got %v", pub.resumed)
	}
}

func TestProcessBatchHoldsLaterEventsOfStalledOrder(t *testing.T) {
	orderID := uuid.New()
	created := orderEvent(t, orderID, enums.EventOrderCreated, 0)
	paid := orderEvent(t, orderID, enums.EventOrderPaid, 0)
	other := orderEvent(t, uuid.New(), enums.EventOrderShipped, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{created, paid, other}}
	pub := &fakePublisher{errs: []error{errors.New("unavailable"), nil}}
	svc := newTestService(t, repo, pub, &fakeDeadLetters{}, 5)

	summary, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if summary.held != 1 {
		t.Fatalf("expected order_paid held, got %+v", summary)
	}
	if len(pub.sent) != 2 {
		t.Fatalf("expected two publish calls, got %d", len(pub.sent))
	}
	if pub.sent[1].OrderingKey != other.AggregateID.String() {
		t.Fatalf("order_paid overtook order_created")
	}
	for _, id := range append(repo.published, repo.failed...) {
		if id == paid.ID {
			t.Fatalf("held row must stay untouched")
		}
	}
}

func TestProcessBatchMarksKnownDuplicates(t *testing.T) {
	event := orderEvent(t, uuid.New(), enums.EventOrderShipped, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, &fakeDeadLetters{}, 5)
	svc.dedupe = &fakeDeduper{seen: map[uuid.UUID]bool{event.ID: true}}

	summary, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.sent) != 0 {
		t.Fatalf("expected no publish for duplicate, got %d", len(pub.sent))
	}
	if summary.duplicates != 1 || len(repo.published) != 1 {
		t.Fatalf("expected duplicate marked published, got %+v", summary)
	}
}

func TestProcessBatchForgetsDedupeMarkOnFailure(t *testing.T) {
	event := orderEvent(t, uuid.New(), enums.EventOrderPaid, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{errs: []error{errors.New("unavailable")}}
	dedupe := &fakeDeduper{seen: map[uuid.UUID]bool{}}
	svc := newTestService(t, repo, pub, &fakeDeadLetters{}, 5)
	svc.dedupe = dedupe

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if dedupe.seen[event.ID] {
		t.Fatalf("expected dedupe mark cleared after failed publish")
	}
}

func TestProcessBatchParksUnresolvableRows(t *testing.T) {
	event := orderEvent(t, uuid.New(), enums.EventOrderCreated, 0)
	event.EventType = enums.OutboxEventType("order_teleported")
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dead := &fakeDeadLetters{}
	svc := newTestService(t, repo, &fakePublisher{}, dead, 5)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(dead.parked) != 1 || dead.parked[0].reason != enums.DeadLetterUnknownEvent {
		t.Fatalf("expected unknown_event dead letter, got %+v", dead.parked)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row marked terminal")
	}
}

func TestProcessBatchDeadLetterReasons(t *testing.T) {
	cases := []struct {
		name        string
		attempts    int
		publishErr  error
		noPublisher bool
		want        enums.OutboxDLQErrorReason
	}{
		{name: "broker rejects payload", publishErr: status.Error(codes.InvalidArgument, "message too large"), want: enums.DeadLetterRejected},
		{name: "topic deleted", publishErr: status.Error(codes.NotFound, "topic not found"), want: enums.DeadLetterUnroutable},
		{name: "no publisher", noPublisher: true, want: enums.DeadLetterUnroutable},
		{name: "out of attempts", attempts: 1, publishErr: status.Error(codes.Unavailable, "try later"), want: enums.DeadLetterMaxAttempts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := orderEvent(t, uuid.New(), enums.EventOrderCancelled, tc.attempts)
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dead := &fakeDeadLetters{}
			pub := &fakePublisher{errs: []error{tc.publishErr}}
			svc := newTestService(t, repo, pub, dead, 2)
			if tc.noPublisher {
				svc.publishers = func(string) publisher { return nil }
			}

			summary, err := svc.processBatch(context.Background())
			if err != nil {
				t.Fatalf("process batch: %v", err)
			}
			if summary.parked != 1 {
				t.Fatalf("expected row parked, got %+v", summary)
			}
			if len(dead.parked) != 1 || dead.parked[0].reason != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, dead.parked)
			}
			if dead.parked[0].event.ID != event.ID {
				t.Fatalf("dead letter carries wrong event")
			}
		})
	}
}

func TestPublishSetsOrderAttributes(t *testing.T) {
	orderID := uuid.New()
	event := orderEvent(t, orderID, enums.EventOrderDelivered, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub, &fakeDeadLetters{}, 5)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.OrderingKey != orderID.String() {
		t.Fatalf("unexpected ordering key %q", msg.OrderingKey)
	}
	if msg.Attributes["event_type"] != "order_delivered" || msg.Attributes["order_id"] != orderID.String() {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.Attributes["event_id"] == "" || msg.Attributes["user_id"] == "" {
		t.Fatalf("missing event or user attribute %v", msg.Attributes)
	}
	if string(msg.Data) != string(event.Payload) {
		t.Fatalf("message data must be the stored envelope")
	}
}

func TestNewServiceRequiresDeadLetters(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     testLogger(),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   testRegistry(t),
	})
	if err == nil {
		t.Fatalf("expected error without dead letter repository")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, dead deadLetterRepository, maxAttempts int) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      10,
			PollIntervalMS: 100,
			MaxAttempts:    maxAttempts,
		}},
		Logger:      testLogger(),
		DB:          &fakeDB{},
		PubSub:      &fakePubSubClient{},
		Repository:  repo,
		Registry:    testRegistry(t),
		DeadLetters: dead,
		Publishers:  func(string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard})
}

func testRegistry(t *testing.T) *registry.EventRegistry {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func orderEvent(t *testing.T, orderID uuid.UUID, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.OrderCancelledEvent{OrderID: orderID, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       env,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type parkedEvent struct {
	event  models.OutboxEvent
	reason enums.OutboxDLQErrorReason
}

type fakeDeadLetters struct {
	parked []parkedEvent
}

func (f *fakeDeadLetters) DeadLetter(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, _ error) error {
	f.parked = append(f.parked, parkedEvent{event: event, reason: reason})
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	errs    []error
	sent    []*gcppubsub.Message
	resumed []string
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	return fakePublishResult{err: err}
}

func (f *fakePublisher) ResumePublish(key string) {
	f.resumed = append(f.resumed, key)
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "server-id", nil
}

type fakeDeduper struct {
	seen map[uuid.UUID]bool
}

func (f *fakeDeduper) CheckAndMark(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if f.seen[id] {
		return true, nil
	}
	f.seen[id] = true
	return false, nil
}

func (f *fakeDeduper) Forget(_ context.Context, _ string, id uuid.UUID) error {
	delete(f.seen, id)
	return nil
}
