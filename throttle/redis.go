package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript bumps the counter and recomputes the cool-down in one step.
// Times are unix milliseconds supplied by the caller.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local base = tonumber(ARGV[3])
local cap = tonumber(ARGV[4])
local maxcd = tonumber(ARGV[5])
local window = tonumber(ARGV[6])

local count = redis.call("HINCRBY", KEYS[1], "count", 1)
local untilMs = tonumber(redis.call("HGET", KEYS[1], "until") or "0")

if count > threshold then
	local exp = count - threshold
	if exp > cap then
		exp = cap
	end
	local cd = base
	for i = 1, exp do
		cd = cd * 2
		if cd >= maxcd then
			break
		end
	end
	if cd > maxcd then
		cd = maxcd
	end
	untilMs = now + cd
end

redis.call("HSET", KEYS[1], "last", tostring(now), "until", tostring(untilMs))

local ttl = window
if untilMs - now > ttl then
	ttl = untilMs - now
end
redis.call("PEXPIRE", KEYS[1], tostring(ttl))

return {count, untilMs}
`)

// RedisBackend keeps Records in Redis hashes under a key prefix.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend returns a backend storing keys as prefix+key. An empty
// prefix defaults to "th:".
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "th:"
	}
	return &RedisBackend{redis: client, prefix: prefix}
}

func (b *RedisBackend) Get(ctx context.Context, key string, now time.Time) (Record, error) {
	vals, err := b.redis.HGetAll(ctx, b.prefix+key).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(vals) == 0 {
		return Record{}, nil
	}

	count, _ := strconv.Atoi(vals["count"])
	last, _ := strconv.ParseInt(vals["last"], 10, 64)
	until, _ := strconv.ParseInt(vals["until"], 10, 64)

	return Record{
		Count:         count,
		LastAttempt:   time.UnixMilli(last),
		CooldownUntil: time.UnixMilli(until),
	}, nil
}

func (b *RedisBackend) Increment(ctx context.Context, key string, now time.Time, p Policy) (Record, error) {
	res, err := incrementScript.Run(ctx, b.redis, []string{b.prefix + key},
		now.UnixMilli(),
		p.Threshold,
		p.Base.Milliseconds(),
		p.ExponentCap,
		p.MaxCooldown.Milliseconds(),
		p.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 2 {
		return Record{}, fmt.Errorf("%w: unexpected script reply", ErrBackendUnavailable)
	}

	return Record{
		Count:         int(res[0]),
		LastAttempt:   now,
		CooldownUntil: time.UnixMilli(res[1]),
	}, nil
}

func (b *RedisBackend) Reset(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.prefix + k
	}
	if err := b.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
