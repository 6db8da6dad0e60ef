package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/redis/go-redis/v9"
)

// slidingScript implements the sliding window atomically
// KEYS[1] = window key (sorted set, score = request time in ms)
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = limit
// ARGV[4] = unique member for this request
// Returns: [allowed (1/0), count, oldest_ms]
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
if count >= limit then
	local oldest = 0
	local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
	if first[2] then
		oldest = tonumber(first[2])
	end
	return {0, count, oldest}
end

redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return {1, count + 1, 0}
`)

// RedisSlidingWindow runs the whole admission server-side, so every
// process sharing the redis instance sees one window per user.
type RedisSlidingWindow struct {
	client    redis.UniversalClient
	limits    LimitSource
	namespace string

	Now func() time.Time
}

func NewRedisSlidingWindow(client redis.UniversalClient, limits LimitSource) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		client:    client,
		limits:    limits,
		namespace: "textgate:ratelimit:",
		Now:       time.Now,
	}
}

func (l *RedisSlidingWindow) Admit(ctx context.Context, username string, tier db.Tier) (Decision, error) {
	limit := l.limits.LimitFor(tier)
	now := l.Now()

	res, err := slidingScript.Run(ctx, l.client,
		[]string{l.namespace + username},
		now.UnixMilli(), Window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, errs.Storage("rate window", err)
	}
	if len(res) != 3 {
		return Decision{}, errs.Storage("rate window", fmt.Errorf("unexpected reply %v", res))
	}

	count := int(res[1])
	if res[0] == 0 {
		d := Decision{Allowed: false, Limit: limit}
		if res[2] > 0 {
			d.RetryAfter = retryAfter(time.UnixMilli(res[2]), now)
		}
		return d, nil
	}
	return Decision{Allowed: true, Limit: limit, Remaining: limit - count}, nil
}

var _ Limiter = (*RedisSlidingWindow)(nil)
