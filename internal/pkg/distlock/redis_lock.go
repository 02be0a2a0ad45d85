package distlock

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "punchlist:lock:"

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX lock with a TTL. The stored value names the owning
// worker, so a replica can only release its own lock and operators can see
// who holds it.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key. ttl bounds how long a crashed worker
// can block the others.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return &RedisLock{
		client: client,
		key:    keyPrefix + key,
		owner:  host + "/" + uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire tries to take the lock without blocking.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distlock: acquire %s: %w", l.key, err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, l.key).Result()
		logger.Debug("distlock: cycle lock busy", "key", l.key, "holder", holder)
	}
	return ok, nil
}

// Release deletes the key only while it still holds our owner value. A lock
// that expired and was taken by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("distlock: release %s: %w", l.key, err)
	}
	if n == 0 {
		logger.Debug("distlock: release skipped, not the owner", "key", l.key)
	}
	return nil
}
