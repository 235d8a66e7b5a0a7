package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted set per key scored by event time in ms.
// Returns {allowed, count, retry_after_ms}.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, count, retry}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`)

// Redis is a sliding-window limiter shared by every instance that talks to
// the same Redis.
type Redis struct {
	client redis.Scripter
	rule   Rule
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis-backed limiter. Keys are stored as prefix+key.
func NewRedis(client redis.Scripter, rule Rule, prefix string) *Redis {
	return &Redis{client: client, rule: rule, prefix: prefix, now: time.Now}
}

// Allow implements Limiter.
func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	nowMs := l.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, l.client,
		[]string{l.prefix + key},
		nowMs, l.rule.Window.Milliseconds(), l.rule.Max,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: l.rule.Max - int(res[1])}, nil
	}
	retry := time.Duration(res[2]) * time.Millisecond
	if retry <= 0 {
		retry = time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
