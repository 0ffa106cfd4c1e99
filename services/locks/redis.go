package locks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates every process sharing the Redis instance.
type RedisLocker struct {
	client   redis.UniversalClient
	prefix   string
	interval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, retryInterval time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, interval: retryInterval}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	return spin(ctx, r.try, key, ttl, wait, r.interval)
}

func (r *RedisLocker) try(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, owner, ttl).Result()
}

func (r *RedisLocker) Release(ctx context.Context, l *Lock) error {
	if l == nil {
		return ErrLockNotHeld
	}

	n, err := releaseScript.Run(ctx, r.client, []string{r.prefix + l.Key}, l.Owner).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
