package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateLimitPrefix = "budgetlink:rate_limit"

// attemptWindowScript counts an attempt and reports the count together with the
// milliseconds left in the window. The window starts at the first attempt.
var attemptWindowScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {attempts, redis.call("PTTL", KEYS[1])}
`)

// RateLimiter counts attempts per subject within a window. Reset clears a
// subject's count, e.g. after a successful login.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
	ResetRateLimit(ctx context.Context, scope, subject string) error
}

// RedisRateLimiter keeps attempt counters in Redis so every instance shares them.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit records one attempt. A limiter without a client, or with a
// non-positive limit or window, counts nothing.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if !r.enabled() || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key, ok := r.key(scope, subject)
	if !ok {
		return 0, 0, nil
	}

	windowMs := max(window.Milliseconds(), 1000)
	reply, err := attemptWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return parseAttemptReply(reply, windowMs)
}

// ResetRateLimit forgets the subject's attempts in scope.
func (r *RedisRateLimiter) ResetRateLimit(ctx context.Context, scope, subject string) error {
	if !r.enabled() {
		return nil
	}
	key, ok := r.key(scope, subject)
	if !ok {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", scope, err)
	}
	return nil
}

func (r *RedisRateLimiter) enabled() bool {
	return r != nil && r.client != nil
}

// key builds the counter key. Subjects are compared case-insensitively so an
// email cannot dodge the limit by changing case.
func (r *RedisRateLimiter) key(scope, subject string) (string, bool) {
	scope = strings.TrimSpace(scope)
	subject = strings.ToLower(strings.TrimSpace(subject))
	if scope == "" || subject == "" {
		return "", false
	}
	return r.prefix + ":" + scope + ":" + subject, true
}

// parseAttemptReply turns the script's {attempts, pttl} reply into the attempt
// count and whole seconds until the window resets (at least 1).
func parseAttemptReply(reply interface{}, windowMs int64) (int, int, error) {
	values, ok := reply.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", reply)
	}
	attempts, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}
	retryAfter := int((ttlMs + 999) / 1000)
	return int(attempts), max(retryAfter, 1), nil
}
