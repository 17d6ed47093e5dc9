package redis

import (
	"context"
	"time"
)

// Window is the state of a caller's fixed-window budget after one request.
type Window struct {
	Allowed bool
	Count   int64
	ResetIn time.Duration
}

// Throttle counts one request against scope in the window that contains
// now. Windows are aligned to the epoch, so every API replica shares them.
func (c *Client) Throttle(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if c.store == nil {
		return Window{}, errNotInitialized
	}
	if window <= 0 {
		return Window{Allowed: true}, nil
	}
	now := c.clock()
	bucket := now.UnixNano() / int64(window)
	key := c.ThrottleKey(scope, bucket)

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return Window{}, err
	}
	if count == 1 {
		if err := c.store.ExpireNX(ctx, key, window).Err(); err != nil {
			return Window{}, err
		}
	}
	resetAt := time.Unix(0, (bucket+1)*int64(window))
	return Window{
		Allowed: count <= limit,
		Count:   count,
		ResetIn: resetAt.Sub(now),
	}, nil
}
