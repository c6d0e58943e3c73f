package redis

import (
	"context"
	"fmt"
	"time"
)

// FixedWindowAllow counts one hit against scope and reports whether the
// window's budget still covers it. The TTL is set by the hit that creates
// the counter, so the window starts at the first request.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	k := c.RateLimitKey(scope)
	hits, err := c.cmd.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", k, err)
	}
	if hits == 1 && window > 0 {
		if err := c.cmd.Expire(ctx, k, window).Err(); err != nil {
			return false, hits, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return hits <= limit, hits, nil
}
