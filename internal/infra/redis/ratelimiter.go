package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 5
	windowSeconds            = 1
	backoffStep              = 50 * time.Millisecond
	backoffMax               = 250 * time.Millisecond
)

// Counter and expiry must move together or a crashed client leaks a key that
// throttles the owner forever, hence the script.
var allowScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if n <= tonumber(ARGV[1]) then
  return 1
end
return 0
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps sends per second per owner. The budget lives in Redis
// so overlapping engine invocations for the same owner share it.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow consumes one send from the owner's budget for the current second.
func (r *RedisRateLimiter) Allow(ctx context.Context, ownerID string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return false, fmt.Errorf("owner id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := allowScript.Run(
		ctx,
		r.client,
		[]string{r.windowKey(owner)},
		r.limitPerSec,
		windowSeconds,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate send budget: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until the owner's budget admits a send or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, ownerID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for backoff := backoffStep; ; {
		allowed, err := r.Allow(ctx, ownerID)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		if backoff += backoffStep; backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (r *RedisRateLimiter) windowKey(owner string) string {
	return fmt.Sprintf("sendlimit:%s:%d", owner, r.now().UTC().Unix())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
