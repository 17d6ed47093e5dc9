package redis

import (
	"context"
	"time"
)

// releaseLease deletes the lease only while the caller still owns it.
const releaseLease = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// AcquireLease takes the named lease for owner until ttl elapses.
func (c *Client) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, c.LeaseKey(name), owner, ttl).Result()
}

// ReleaseLease gives the lease back. It reports false when the lease had
// already expired or was taken by someone else.
func (c *Client) ReleaseLease(ctx context.Context, name, owner string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	n, err := c.store.Eval(ctx, releaseLease, []string{c.LeaseKey(name)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
