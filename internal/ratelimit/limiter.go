package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted-set member per accepted request scored by its
// timestamp in milliseconds. Rejected requests are not recorded.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
	redis.call("ZADD", KEYS[1], now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)

local oldest = now
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if #first > 0 then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter is a Redis sliding-window log shared by every instance of the service.
type Limiter struct {
	client redis.Scripter
	salt   string
	nowFn  func() time.Time
}

func NewLimiter(client redis.Scripter, salt string) *Limiter {
	return &Limiter{client: client, salt: salt, nowFn: time.Now}
}

// Key hashes the identifier so raw IPs and license keys never reach Redis.
func (l *Limiter) Key(operation, identifier string) string {
	sum := sha256.Sum256([]byte(l.salt + ":" + identifier))
	return "rl:" + operation + ":" + hex.EncodeToString(sum[:16])
}

func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Decision, error) {
	now := l.nowFn()
	nowMs := now.UnixMilli()

	res, err := slidingWindow.Run(ctx, l.client, []string{key},
		nowMs, window.Milliseconds(), limit, fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("sliding window script failed: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("sliding window script returned %d values", len(res))
	}

	count := int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(window)
	d := &Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(resetAt.Sub(now), time.Millisecond)
	}
	return d, nil
}
