// Package registry routes order events from outbox rows onto Pub/Sub.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor ties an order event type to its topic and payload shape.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that decoded cleanly and knows its route.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
	OrderID    uuid.UUID
	UserID     uuid.UUID
	CreatedAt  time.Time
}

// OrderingKey keeps every event of one order on the same ordered stream so
// subscribers never see order_paid ahead of order_created.
func (e *ResolvedEvent) OrderingKey() string {
	return e.OrderID.String()
}

// Message renders the Pub/Sub message for the event. Data is the stored
// envelope so consumers decode the same bytes the outbox committed.
func (e *ResolvedEvent) Message(data []byte) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":   e.Envelope.EventID,
		"event_type": string(e.Descriptor.EventType),
		"order_id":   e.OrderID.String(),
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.UserID != uuid.Nil {
		attrs["user_id"] = e.UserID.String()
	}
	return &gcppubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: e.OrderingKey(),
	}
}

// DeadLetterError marks a row that retrying cannot fix.
type DeadLetterError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e DeadLetterError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e DeadLetterError) Unwrap() error { return e.Err }

// DeadLetter wraps err so the publisher parks the row under reason.
func DeadLetter(reason enums.OutboxDLQErrorReason, err error) error {
	return DeadLetterError{Reason: reason, Err: err}
}

// DeadLetterReason extracts the park reason carried by err, if any.
func DeadLetterReason(err error) (enums.OutboxDLQErrorReason, bool) {
	var dead DeadLetterError
	if errors.As(err, &dead) {
		return dead.Reason, true
	}
	return "", false
}

// EventRegistry maps every order event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes the order lifecycle onto cfg.OrdersTopic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for eventType, factory := range orderPayloads {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateOrder,
			Topic:          cfg.OrdersTopic,
			PayloadFactory: factory,
		}
	}
	return reg, nil
}

var orderPayloads = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:   func() any { return &payloads.OrderCreatedEvent{} },
	enums.EventOrderPaid:      func() any { return &payloads.OrderPaidEvent{} },
	enums.EventPaymentFailed:  func() any { return &payloads.PaymentFailedEvent{} },
	enums.EventOrderShipped:   func() any { return &payloads.OrderShippedEvent{} },
	enums.EventOrderDelivered: func() any { return &payloads.OrderDeliveredEvent{} },
	enums.EventOrderCancelled: func() any { return &payloads.OrderCancelledEvent{} },
	enums.EventOrderExpired:   func() any { return &payloads.OrderExpiredEvent{} },
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// orderRef is the part every order payload shares.
type orderRef struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}

// Resolve decodes the row and checks that its payload names the same order
// as the row's aggregate id. Failures come back as DeadLetterError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, DeadLetter(enums.DeadLetterUnknownEvent, fmt.Errorf("no route for %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, DeadLetter(enums.DeadLetterMalformed, fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, DeadLetter(enums.DeadLetterMalformed, errors.New("row has no order id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, DeadLetter(enums.DeadLetterMalformed, fmt.Errorf("%s: %w", event.EventType, err))
	}
	data := envelope.Data

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, DeadLetter(enums.DeadLetterMalformed, fmt.Errorf("decode %s: %w", event.EventType, err))
	}
	var ref orderRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, DeadLetter(enums.DeadLetterMalformed, fmt.Errorf("decode order ref: %w", err))
	}
	if ref.OrderID != uuid.Nil && ref.OrderID != event.AggregateID {
		return nil, DeadLetter(enums.DeadLetterMalformed, fmt.Errorf("payload order %s does not match row order %s", ref.OrderID, event.AggregateID))
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = envelope.OccurredAt
	}
	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
		OrderID:    event.AggregateID,
		UserID:     ref.UserID,
		CreatedAt:  createdAt,
	}, nil
}
