package runlock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps string keys in memory and understands the release script only.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return redis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) compareDelete(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareDelete(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.compareDelete(keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisLocker_AcquireIsExclusive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeRedis()
	locker := NewRedisLocker(client, "", 0)

	ok, err := locker.Acquire(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DefaultTTL, client.ttls[DefaultKey])

	ok, err = locker.Acquire(ctx, "run-b")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locker.Release(ctx, "run-a"))

	ok, err = locker.Acquire(ctx, "run-b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLocker_ReleaseByOtherOwnerKeepsLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeRedis()
	locker := NewRedisLocker(client, "harvest:lock", time.Minute)

	ok, err := locker.Acquire(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)

	err = locker.Release(ctx, "run-b")
	require.ErrorIs(t, err, ErrLockLost)
	require.Equal(t, "run-a", client.values["harvest:lock"])
}

func TestRedisLocker_AcquireError(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	client.failSet = errors.New("connection reset")
	locker := NewRedisLocker(client, "k", time.Minute)

	ok, err := locker.Acquire(context.Background(), "run-a")
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, strings.Contains(err.Error(), "connection reset"))

	_, err = locker.Acquire(context.Background(), " ")
	require.Error(t, err)
}

func TestDial_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "http://not-redis", "", 0)
	require.Error(t, err)
}
