package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "streamchat:stream:"

// release deletes the key only while it still carries our token.
var release = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{rdb: l.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) Release(ctx context.Context) error {
	err := release.Run(ctx, r.rdb, []string{keyPrefix + r.key}, r.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease %s: %w", r.key, err)
	}
	return nil
}
