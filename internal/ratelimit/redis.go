package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript starts a window with a PX expiry when the key is absent and only
// increments while the count is below the limit. Returns {count, pttl, allowed}.
var fixedWindowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  count = 0
  ttl = tonumber(ARGV[2])
  redis.call('SET', KEYS[1], 0, 'PX', ttl)
end
local allowed = 0
if count < tonumber(ARGV[1]) then
  count = redis.call('INCR', KEYS[1])
  allowed = 1
end
return {count, ttl, allowed}
`)

// RedisStore shares fixed-window counters across processes.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreWithURL dials Redis from a redis:// URL.
func NewRedisStoreWithURL(url string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisStore(client, ""), client, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, error) {
	res, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("fixed window script: %w", err)
	}
	if len(res) != 3 {
		return Window{}, fmt.Errorf("fixed window script: unexpected reply length %d", len(res))
	}
	return Window{
		Count:     int(res[0]),
		ResetTime: now.Add(time.Duration(res[1]) * time.Millisecond),
		Allowed:   res[2] == 1,
	}, nil
}
