package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeDuplicate
	outcomeRetry
	outcomeHeld
	outcomeParked
)

type batchSummary struct {
	fetched    int
	published  int
	duplicates int
	retried    int
	held       int
	parked     int
}

func (b *batchSummary) record(o outcome) {
	switch o {
	case outcomePublished:
		b.published++
	case outcomeDuplicate:
		b.duplicates++
	case outcomeRetry:
		b.retried++
	case outcomeHeld:
		b.held++
	case outcomeParked:
		b.parked++
	}
}

func (b batchSummary) fields() map[string]any {
	return map[string]any{
		"fetched":    b.fetched,
		"published":  b.published,
		"duplicates": b.duplicates,
		"retried":    b.retried,
		"held":       b.held,
		"parked":     b.parked,
	}
}

// processBatch locks one batch of unpublished rows and settles each of them
// inside the same transaction. Once an order has a row that must be retried,
// its later rows in the batch are held back untouched so they cannot overtake it.
func (s *Service) processBatch(ctx context.Context) (batchSummary, error) {
	var summary batchSummary
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		summary = batchSummary{fetched: len(events)}

		stalled := make(map[uuid.UUID]bool)
		for _, event := range events {
			if stalled[event.AggregateID] {
				summary.record(outcomeHeld)
				continue
			}
			result, err := s.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			if result == outcomeRetry {
				stalled[event.AggregateID] = true
			}
			summary.record(result)
		}
		return nil
	})
	if summary.fetched > 0 {
		s.logg.Info(s.logg.WithFields(ctx, summary.fields()), "outbox batch settled")
	}
	return summary, err
}

func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	eventCtx := s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"order_id":      event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		reason, ok := registry.DeadLetterReason(err)
		if !ok {
			reason = enums.DeadLetterMalformed
		}
		return outcomeParked, s.park(eventCtx, tx, event, reason, err)
	}

	if s.alreadyPublished(eventCtx, event.ID) {
		s.logg.Info(eventCtx, "order event already on the bus")
		return outcomeDuplicate, s.markPublished(tx, event.ID)
	}

	if err := s.publish(eventCtx, event, resolved); err != nil {
		s.forget(eventCtx, event.ID)
		if reason, ok := registry.DeadLetterReason(err); ok {
			return outcomeParked, s.park(eventCtx, tx, event, reason, err)
		}
		if event.AttemptCount+1 >= s.maxAttempts {
			return outcomeParked, s.park(eventCtx, tx, event, enums.DeadLetterMaxAttempts, err)
		}
		s.logg.Warn(s.logg.WithField(eventCtx, "error", err.Error()), "order event publish failed, will retry")
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return outcomeRetry, nil
	}

	return outcomePublished, s.markPublished(tx, event.ID)
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.DeadLetter(enums.DeadLetterUnroutable, fmt.Errorf("no publisher for topic %q", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	msg := resolved.Message(event.Payload)
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.DeadLetter(enums.DeadLetterUnroutable, fmt.Errorf("publisher for %q returned no result", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// An ordered publisher pauses the key after a failure until resumed.
		pub.ResumePublish(msg.OrderingKey)
		return classifyPublishError(err)
	}
	return nil
}

// classifyPublishError separates broker answers that will never change from
// transient failures worth another attempt.
func classifyPublishError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return registry.DeadLetter(enums.DeadLetterUnroutable, err)
	case codes.InvalidArgument, codes.PermissionDenied, codes.FailedPrecondition:
		return registry.DeadLetter(enums.DeadLetterRejected, err)
	default:
		return err
	}
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"dead_letter_reason": reason, "error": cause.Error()})
	s.logg.Warn(ctx, "order event parked in dead letter table")

	if err := s.deadLetters.DeadLetter(tx, event, reason, cause); err != nil {
		return fmt.Errorf("dead letter %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) markPublished(tx *gorm.DB, id uuid.UUID) error {
	if err := s.repo.MarkPublishedTx(tx, id); err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	return nil
}

// alreadyPublished claims the event for this publisher. Redis being down
// must not stop the relay, so a failed check counts as unseen.
func (s *Service) alreadyPublished(ctx context.Context, id uuid.UUID) bool {
	if s.dedupe == nil {
		return false
	}
	seen, err := s.dedupe.CheckAndMark(ctx, dedupeConsumer, id)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox dedupe unavailable")
		return false
	}
	return seen
}

func (s *Service) forget(ctx context.Context, id uuid.UUID) {
	if s.dedupe == nil {
		return
	}
	if err := s.dedupe.Forget(ctx, dedupeConsumer, id); err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "failed to clear dedupe mark", err)
	}
}
