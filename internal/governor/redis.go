package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window markers in two sorted sets per credential so
// multiple nodes can share one quota. The check-and-record sequence runs
// as a single script, which gives the same per-credential atomicity the
// in-memory store gets from its mutex.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "governor"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local mwin = tonumber(ARGV[2])
local hwin = tonumber(ARGV[3])
local mlim = tonumber(ARGV[4])
local hlim = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - mwin)
redis.call('ZREMRANGEBYSCORE', KEYS[2], 0, now - hwin)

local mcount = redis.call('ZCARD', KEYS[1])
local hcount = redis.call('ZCARD', KEYS[2])

if mcount >= mlim or hcount >= hlim then
	local om = 0
	local oh = 0
	local oldm = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local oldh = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
	if oldm[2] then om = tonumber(oldm[2]) end
	if oldh[2] then oh = tonumber(oldh[2]) end
	return {0, mcount, hcount, om, oh}
end

redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('ZADD', KEYS[2], now, ARGV[6])
redis.call('PEXPIRE', KEYS[1], math.ceil(mwin / 1000))
redis.call('PEXPIRE', KEYS[2], math.ceil(hwin / 1000))

return {1, mcount + 1, hcount + 1, 0, 0}
`)

func (s *RedisStore) Admit(ctx context.Context, credential string, now time.Time, limits Limits) (Decision, error) {
	keys := []string{
		fmt.Sprintf("%s:%s:minute", s.prefix, credential),
		fmt.Sprintf("%s:%s:hour", s.prefix, credential),
	}
	args := []interface{}{
		now.UnixMicro(),
		MinuteWindow.Microseconds(),
		HourWindow.Microseconds(),
		limits.PerMinute,
		limits.PerHour,
		uuid.New().String(),
	}

	raw, err := admitScript.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate admit script: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 5 {
		return Decision{}, fmt.Errorf("rate admit script: unexpected reply %v", raw)
	}

	allowed := asInt64(reply[0]) == 1
	minuteCount := int(asInt64(reply[1]))
	hourCount := int(asInt64(reply[2]))

	d := Decision{
		Allowed:         allowed,
		RemainingMinute: remaining(limits.PerMinute, minuteCount),
		RemainingHour:   remaining(limits.PerHour, hourCount),
	}
	if allowed {
		return d, nil
	}

	var retry time.Duration
	if minuteCount >= limits.PerMinute {
		oldest := time.UnixMicro(asInt64(reply[3]))
		retry = oldest.Add(MinuteWindow).Sub(now)
	}
	if hourCount >= limits.PerHour {
		oldest := time.UnixMicro(asInt64(reply[4]))
		if r := oldest.Add(HourWindow).Sub(now); r > retry {
			retry = r
		}
	}
	if retry < 0 {
		retry = 0
	}
	d.RetryAfter = retry
	return d, nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		var out int64
		fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}
