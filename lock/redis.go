package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hidenkeys/aloes/apperr"
)

const keyPrefix = "aloes:lock:"

// acquire takes a free lock, or extends it when the caller already holds it.
var acquireScript = redis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if not holder then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if holder == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// release deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisManager struct {
	c   *redis.Client
	ttl time.Duration
}

func NewRedisManager(c *redis.Client, ttl time.Duration) *RedisManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisManager{c: c, ttl: ttl}
}

func (m *RedisManager) Acquire(ctx context.Context, key Key, holder string) error {
	n, err := acquireScript.Run(ctx, m.c, []string{keyPrefix + key.String()}, holder, m.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.AlreadyLocked("%s est en cours de modification", key)
	}
	return nil
}

func (m *RedisManager) Release(ctx context.Context, key Key, holder string) error {
	return releaseScript.Run(ctx, m.c, []string{keyPrefix + key.String()}, holder).Err()
}

func (m *RedisManager) IsHeldBy(ctx context.Context, key Key, holder string) (bool, error) {
	val, err := m.c.Get(ctx, keyPrefix+key.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	return val == holder, nil
}
