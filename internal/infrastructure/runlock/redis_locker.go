package runlock

import (
	"context"
	"fmt"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey = "fixture-harvester:run-lock"
	DefaultTTL = 30 * time.Minute
)

// ErrLockLost is returned by Release when the key expired or now belongs to another owner.
var ErrLockLost = crerr.New("run lock no longer held")

// releaseScript deletes the key only while it still carries the caller's owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of go-redis the locker needs.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker is a single-key TTL lock shared by every harvester replica.
type RedisLocker struct {
	client Client
	key    string
	ttl    time.Duration
	closer func() error
}

func NewRedisLocker(client Client, key string, ttl time.Duration) *RedisLocker {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Dial connects to REDIS_URL and pings it before returning.
func Dial(ctx context.Context, redisURL, key string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	locker := NewRedisLocker(client, key, ttl)
	locker.closer = client.Close
	return locker, nil
}

func (l *RedisLocker) Key() string { return l.key }

func (l *RedisLocker) Acquire(ctx context.Context, owner string) (bool, error) {
	if strings.TrimSpace(owner) == "" {
		return false, fmt.Errorf("acquire run lock: owner is required")
	}
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, owner string) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Int64()
	if err != nil {
		return fmt.Errorf("release run lock %s: %w", l.key, err)
	}
	if deleted == 0 {
		return crerr.Wrapf(ErrLockLost, "release run lock %s", l.key)
	}
	return nil
}

func (l *RedisLocker) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
