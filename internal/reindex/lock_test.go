package reindex

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLocker_ExclusiveUntilReleased(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	a := NewRedisLocker(rdb, time.Minute, testLogger())
	b := NewRedisLocker(rdb, time.Minute, testLogger())

	lease, err := a.Acquire(ctx, "reindex:lock:test")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "reindex:lock:test")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	lease, err = b.Acquire(ctx, "reindex:lock:test")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRedisLocker_ExpiredLeaseCanBeTaken(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(rdb, time.Minute, testLogger())

	lease, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	defer func() { _ = lease.Release(ctx) }()

	mr.FastForward(2 * time.Minute)

	other, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestRedisLocker_Unreachable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, err := NewRedisLocker(rdb, time.Minute, testLogger()).Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestRedisLocker_LeaseLostWhenKeyDisappears(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	lease, err := NewRedisLocker(rdb, 30*time.Millisecond, testLogger()).Acquire(ctx, "k")
	require.NoError(t, err)

	select {
	case <-lease.Lost():
		t.Fatal("lease reported lost while refreshes succeed")
	case <-time.After(100 * time.Millisecond):
	}

	mr.Del("k")

	select {
	case <-lease.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("lease was not reported lost")
	}
	require.NoError(t, lease.Release(ctx))
}
