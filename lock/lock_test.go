package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/hidenkeys/aloes/apperr"
	"github.com/hidenkeys/aloes/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisManager(t *testing.T, ttl time.Duration) (*RedisManager, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisManager(c, ttl), mr
}

func TestRedisManager_AcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)
	key := For("room", 12)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	require.NoError(t, m.Acquire(ctx, key, "s1"), "same holder re-acquires")

	err := m.Acquire(ctx, key, "s2")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyLocked))

	held, err := m.IsHeldBy(ctx, key, "s1")
	require.NoError(t, err)
	assert.True(t, held)

	held, err = m.IsHeldBy(ctx, key, "s2")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedisManager_ReleaseOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, time.Hour)
	key := For("tenant", 3)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	require.NoError(t, m.Release(ctx, key, "s2"))
	assert.True(t, mr.Exists(keyPrefix+"tenant:3"))

	require.NoError(t, m.Release(ctx, key, "s1"))
	assert.False(t, mr.Exists(keyPrefix+"tenant:3"))

	require.NoError(t, m.Acquire(ctx, key, "s2"))
}

func TestRedisManager_Expiry(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, time.Minute)
	key := For("leasing", 7)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	mr.FastForward(30 * time.Second)
	require.NoError(t, m.Acquire(ctx, key, "s1"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"leasing:7"))

	mr.FastForward(2 * time.Minute)
	held, err := m.IsHeldBy(ctx, key, "s1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, m.Acquire(ctx, key, "s2"))
}

type commandLog struct{ names []string }

func (l *commandLog) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	l.names = append(l.names, cmd.Name())
	return ctx, nil
}

func (l *commandLog) AfterProcess(context.Context, redis.Cmder) error { return nil }

func (l *commandLog) BeforeProcessPipeline(ctx context.Context, _ []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (l *commandLog) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func TestRedisManager_AcquireIsOneScript(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	cmds := &commandLog{}
	c.AddHook(cmds)
	m := NewRedisManager(c, time.Minute)
	key := For("room", 4)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"room:4"))
	got, err := mr.Get(keyPrefix + "room:4")
	require.NoError(t, err)
	assert.Equal(t, "s1", got)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	assert.True(t, errors.Is(m.Acquire(ctx, key, "s2"), apperr.ErrAlreadyLocked))

	for _, name := range cmds.names {
		assert.Contains(t, []string{"evalsha", "eval"}, name)
	}
}

func newDBManager(t *testing.T) (*DBManager, *time.Time) {
	db, err := storage.OpenMemory(&EditLock{})
	require.NoError(t, err)

	clock := time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)
	m := NewDBManager(db, time.Hour)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestDBManager_AcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	m, _ := newDBManager(t)
	key := For("room", 1)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	require.NoError(t, m.Acquire(ctx, key, "s1"))

	err := m.Acquire(ctx, key, "s2")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyLocked))

	held, err := m.IsHeldBy(ctx, key, "s1")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestDBManager_ExpiredLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	m, clock := newDBManager(t)
	key := For("school", 2)

	require.NoError(t, m.Acquire(ctx, key, "s1"))
	*clock = clock.Add(2 * time.Hour)

	held, err := m.IsHeldBy(ctx, key, "s1")
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, m.Acquire(ctx, key, "s2"))
	held, err = m.IsHeldBy(ctx, key, "s2")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestDBManager_ReleaseAndPurge(t *testing.T) {
	ctx := context.Background()
	m, clock := newDBManager(t)

	require.NoError(t, m.Acquire(ctx, For("rent", 1), "s1"))
	require.NoError(t, m.Acquire(ctx, For("rent", 2), "s1"))

	require.NoError(t, m.Release(ctx, For("rent", 1), "other"))
	held, _ := m.IsHeldBy(ctx, For("rent", 1), "s1")
	assert.True(t, held)

	require.NoError(t, m.Release(ctx, For("rent", 1), "s1"))
	require.NoError(t, m.Acquire(ctx, For("rent", 1), "s2"))

	*clock = clock.Add(2 * time.Hour)
	n, err := m.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
