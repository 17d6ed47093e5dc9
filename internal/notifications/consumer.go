package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/retroquest/storefront-backend/pkg/db/models"
	"github.com/retroquest/storefront-backend/pkg/enums"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/outbox"
	"github.com/retroquest/storefront-backend/pkg/outbox/payloads"
)

const orderNotificationConsumer = "order-notifications"

type writer interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

type deduper interface {
	CheckAndMark(ctx context.Context, component string, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, component string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns order lifecycle events into customer notifications.
type Consumer struct {
	repo         writer
	subscription receiver
	dedupe       deduper
	logg         *logger.Logger
}

// NewConsumer builds an order notification consumer.
func NewConsumer(repo writer, subscription receiver, dedupe deduper, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order events subscription required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "undecodable envelope", err)
		return processResult{ack: true}
	}
	eventID, _ := envelope.ID()

	already, err := c.dedupe.CheckAndMark(ctx, orderNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := buildNotification(eventType, eventID, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		c.forget(ctx, eventID)
		return processResult{nack: true}
	}
	if notification == nil {
		return processResult{ack: true}
	}

	logCtx = c.logg.WithUserID(logCtx, notification.UserID.String())
	if _, err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "notification insert failed", err)
		c.forget(ctx, eventID)
		return processResult{nack: true}
	}
	c.logg.Info(logCtx, "customer notified")
	return processResult{ack: true}
}

func (c *Consumer) forget(ctx context.Context, eventID uuid.UUID) {
	if err := c.dedupe.Forget(ctx, orderNotificationConsumer, eventID); err != nil {
		c.logg.Error(ctx, "failed to clear idempotency mark", err)
	}
}

// buildNotification renders the customer-facing message for an order event.
// A nil notification means the event is not surfaced to the customer.
func buildNotification(eventType enums.OutboxEventType, eventID uuid.UUID, data json.RawMessage) (*models.Notification, error) {
	var (
		userID  uuid.UUID
		orderID uuid.UUID
		kind    enums.NotificationType
		title   string
		message string
	)

	switch eventType {
	case enums.EventOrderCreated:
		var p payloads.OrderCreatedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypeOrderUpdate
		title = "Order received"
		message = fmt.Sprintf("We received your order of %s. Items are held while we wait for payment.", formatCents(p.TotalCents))
	case enums.EventOrderPaid:
		var p payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypeOrderUpdate
		title = "Payment confirmed"
		message = "Your payment was confirmed and your order is being prepared."
	case enums.EventPaymentFailed:
		var p payloads.PaymentFailedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypePaymentAlert
		title = "Payment failed"
		message = "We could not process your payment."
		if p.Reason != "" {
			message = fmt.Sprintf("We could not process your payment: %s", p.Reason)
		}
	case enums.EventOrderShipped:
		var p payloads.OrderShippedEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypeShippingUpdate
		title = "Order shipped"
		message = fmt.Sprintf("Your order is on its way. Tracking code: %s", p.TrackingCode)
	case enums.EventOrderDelivered:
		var p payloads.OrderDeliveredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypeShippingUpdate
		title = "Order delivered"
		message = "Your order was delivered. Enjoy!"
	case enums.EventOrderCancelled:
		var p payloads.OrderCancelledEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypeOrderUpdate
		title = "Order cancelled"
		message = "Your order was cancelled."
		if p.CancelledBy != p.UserID {
			message = "Your order was cancelled by our team."
		}
	case enums.EventOrderExpired:
		var p payloads.OrderExpiredEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		userID, orderID = p.UserID, p.OrderID
		kind = enums.NotificationTypePaymentAlert
		title = "Order expired"
		message = "Your order expired before payment arrived and the items were released."
	default:
		return nil, nil
	}

	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id missing")
	}
	link := fmt.Sprintf("/orders/%s", orderID)
	notification := &models.Notification{
		UserID:  userID,
		EventID: eventID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    &link,
	}
	if orderID != uuid.Nil {
		notification.OrderID = &orderID
	}
	return notification, nil
}

func formatCents(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
