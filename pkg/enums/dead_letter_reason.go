package enums

// OutboxDLQErrorReason explains why the publisher parked an order event in
// outbox_dlq instead of retrying it.
type OutboxDLQErrorReason string

const (
	// DeadLetterUnknownEvent is a row whose event type has no route.
	DeadLetterUnknownEvent OutboxDLQErrorReason = "unknown_event"
	// DeadLetterMalformed is a row whose envelope or payload does not decode.
	DeadLetterMalformed OutboxDLQErrorReason = "malformed_payload"
	// DeadLetterUnroutable is a row whose topic has no publisher.
	DeadLetterUnroutable OutboxDLQErrorReason = "unroutable"
	// DeadLetterRejected is a message Pub/Sub refused permanently.
	DeadLetterRejected OutboxDLQErrorReason = "broker_rejected"
	// DeadLetterMaxAttempts is a row that kept failing transiently.
	DeadLetterMaxAttempts OutboxDLQErrorReason = "max_attempts"
)

var deadLetterReasons = newSet("dead letter reason",
	DeadLetterUnknownEvent,
	DeadLetterMalformed,
	DeadLetterUnroutable,
	DeadLetterRejected,
	DeadLetterMaxAttempts,
)

func (r OutboxDLQErrorReason) String() string { return string(r) }
func (r OutboxDLQErrorReason) IsValid() bool  { return deadLetterReasons.has(r) }

// Replayable reports whether fixing the cause outside the row (a topic, a
// broker outage) is enough to publish it again unchanged.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == DeadLetterUnroutable || r == DeadLetterMaxAttempts
}

// DeadLetterReasons lists every reason the outbox_dlq CHECK constraint allows.
func DeadLetterReasons() []OutboxDLQErrorReason { return deadLetterReasons.all() }

func ParseDeadLetterReason(value string) (OutboxDLQErrorReason, error) {
	return deadLetterReasons.parse(value)
}
