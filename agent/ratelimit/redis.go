package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	contractx "github.com/haasonsaas/adept/agent/contract"
	redisrestx "github.com/haasonsaas/adept/pkg/redisrest"
)

const defaultKeyPrefix = "adept:rl:"

// RedisWindowLimiter counts calls per (user, tool) in fixed windows shared
// across processes. Check reads the counter without touching it; Record
// increments and arms the window TTL.
type RedisWindowLimiter struct {
	client    *redisrestx.Client
	limit     int64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

var _ contractx.RateLimiter = (*RedisWindowLimiter)(nil)

func NewRedisWindowLimiter(client *redisrestx.Client, limit int64, window time.Duration) (*RedisWindowLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindowLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: defaultKeyPrefix,
		now:       time.Now,
	}, nil
}

func (l *RedisWindowLimiter) Check(ctx context.Context, tool, userID string) (contractx.RateDecision, error) {
	key, windowEnd := l.windowKey(tool, userID)

	raw, ok, err := l.client.GetString(ctx, key)
	if err != nil {
		return contractx.RateDecision{}, fmt.Errorf("read rate window: %w", err)
	}
	if !ok {
		return contractx.RateDecision{Allowed: true}, nil
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return contractx.RateDecision{}, fmt.Errorf("decode rate window counter: %w", err)
	}
	if count < l.limit {
		return contractx.RateDecision{Allowed: true}, nil
	}

	return contractx.RateDecision{
		Allowed:    false,
		Reason:     fmt.Sprintf("rate limit for tool %q: %d calls per %s", tool, l.limit, l.window),
		RetryAfter: windowEnd.Sub(l.now()),
	}, nil
}

func (l *RedisWindowLimiter) Record(ctx context.Context, tool, userID string) error {
	key, _ := l.windowKey(tool, userID)
	count, err := l.client.Incr(ctx, key)
	if err != nil {
		return fmt.Errorf("increment rate window: %w", err)
	}
	if count == 1 {
		// TTL slack covers clock skew between processes.
		if err := l.client.Expire(ctx, key, l.window+time.Second); err != nil {
			return fmt.Errorf("arm rate window ttl: %w", err)
		}
	}
	return nil
}

func (l *RedisWindowLimiter) windowKey(tool, userID string) (string, time.Time) {
	now := l.now()
	start := now.Truncate(l.window)
	key := fmt.Sprintf("%s%s:%s:%d", l.keyPrefix, userID, tool, start.Unix())
	return key, start.Add(l.window)
}
