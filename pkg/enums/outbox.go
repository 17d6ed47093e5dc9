package enums

// OutboxAggregateType is the aggregate_type column of outbox_events. Orders
// are the only aggregate that emits events.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = newSet("aggregate type", AggregateOrder)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order_created"
	EventOrderPaid      OutboxEventType = "order_paid"
	EventPaymentFailed  OutboxEventType = "payment_failed"
	EventOrderShipped   OutboxEventType = "order_shipped"
	EventOrderDelivered OutboxEventType = "order_delivered"
	EventOrderCancelled OutboxEventType = "order_cancelled"
	EventOrderExpired   OutboxEventType = "order_expired"
)

var eventTypes = newSet("event type",
	EventOrderCreated,
	EventOrderPaid,
	EventPaymentFailed,
	EventOrderShipped,
	EventOrderDelivered,
	EventOrderCancelled,
	EventOrderExpired,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// OrderEventTypes lists every order lifecycle event in lifecycle order.
func OrderEventTypes() []OutboxEventType { return eventTypes.all() }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}
