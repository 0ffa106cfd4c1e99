package counters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript sets the expiry on the first increment only, so the window
// is fixed. A key found without an expiry gets one too. Runs on any Redis
// with scripting, unlike EXPIRE NX which needs 7.0.
var incrementScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisStore shares counters between processes.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, s.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("counter increment %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("counter ttl %s: %w", key, err)
	}
	// Missing keys and keys without expiry report negative values.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("counter reset %s: %w", key, err)
	}
	return nil
}
