package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript increments the window counter only while it is below the
// limit, creating the window with a TTL on first use.
// Returns {allowed, count}.
var checkScript = redis.NewScript(`
	local count = tonumber(redis.call('GET', KEYS[1]) or '0')
	if count >= tonumber(ARGV[2]) then
		return {0, count}
	end
	count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return {1, count}
`)

// RedisLimiter is a fixed-window limiter shared by every process using the
// same Redis instance and key prefix.
type RedisLimiter struct {
	client      redis.UniversalClient
	prefix      string
	window      time.Duration
	maxRequests int
	logger      *slog.Logger
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored under
// prefix, which should be unique per limited operation.
func NewRedisLimiter(client redis.UniversalClient, prefix string, windowLen time.Duration, maxRequests int, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:      client,
		prefix:      prefix,
		window:      windowLen,
		maxRequests: maxRequests,
		logger:      logger,
	}
}

func (l *RedisLimiter) key(identifier string) string {
	return l.prefix + identifier
}

// Check implements Limiter. Redis errors allow the request.
func (l *RedisLimiter) Check(ctx context.Context, identifier string) bool {
	res, err := checkScript.Run(ctx, l.client, []string{l.key(identifier)}, l.window.Milliseconds(), l.maxRequests).Int64Slice()
	if err != nil {
		l.logger.Error("rate limit check failed, allowing request", "error", err, "prefix", l.prefix)
		return true
	}
	if len(res) != 2 {
		l.logger.Error("rate limit check returned unexpected result", "result", fmt.Sprint(res))
		return true
	}
	return res[0] == 1
}

// Remaining implements Limiter.
func (l *RedisLimiter) Remaining(ctx context.Context, identifier string) int {
	count, err := l.client.Get(ctx, l.key(identifier)).Int()
	if err != nil {
		return l.maxRequests
	}
	return max(0, l.maxRequests-count)
}

// ResetTime implements Limiter.
func (l *RedisLimiter) ResetTime(ctx context.Context, identifier string) (time.Time, bool) {
	ttl, err := l.client.PTTL(ctx, l.key(identifier)).Result()
	if err != nil || ttl <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(ttl), true
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) {
	if err := l.client.Del(ctx, l.key(identifier)).Err(); err != nil {
		l.logger.Error("rate limit reset failed", "error", err, "prefix", l.prefix)
	}
}

// Limit implements Limiter.
func (l *RedisLimiter) Limit() int {
	return l.maxRequests
}

var _ Limiter = (*RedisLimiter)(nil)
