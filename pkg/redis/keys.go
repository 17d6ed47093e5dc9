package redis

import (
	"strconv"
	"strings"
)

const keyNamespace = "rq"

// Keyspaces partition the storefront's redis usage so a flush of one
// concern never touches another.
const (
	spaceReplay   = "replay"
	spaceThrottle = "throttle"
	spaceLease    = "lease"
	spaceEvent    = "event"
)

// ReplayKey addresses a stored HTTP response for (scope, Idempotency-Key).
func (c *Client) ReplayKey(scope, id string) string {
	return joinKey(spaceReplay, scope, id)
}

// ThrottleKey addresses the counter of one fixed window.
func (c *Client) ThrottleKey(scope string, bucket int64) string {
	return joinKey(spaceThrottle, scope, strconv.FormatInt(bucket, 10))
}

// LeaseKey addresses a worker lease such as the cron cycle lock.
func (c *Client) LeaseKey(name string) string {
	return joinKey(spaceLease, name)
}

// EventKey addresses the handled mark of an order event for one consumer.
func (c *Client) EventKey(consumer, eventID string) string {
	return joinKey(spaceEvent, consumer, eventID)
}

func joinKey(space string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(space)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
