package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld is returned by a Locker when another holder owns the key.
	ErrLockHeld = errors.New("lock held by another process")
	// ErrLockLost cancels a job whose lease could not be refreshed.
	ErrLockLost = errors.New("reindex lock lost")
)

// Locker guards a reindex target across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is an acquired lock. Lost is closed if the lock stops being held
// before Release.
type Lease interface {
	Release(ctx context.Context) error
	Lost() <-chan struct{}
}

// RedisLocker holds locks in Redis and keeps them alive while the job runs.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker whose leases expire after ttl unless refreshed.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "reindex_lock")),
	}
}

// Acquire obtains key without waiting.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, ErrLockHeld)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	lease := &redisLease{lock: lock, stop: make(chan struct{}), lost: make(chan struct{})}
	lease.wg.Add(1)
	go l.keepAlive(key, lease)
	return lease, nil
}

func (l *RedisLocker) keepAlive(key string, lease *redisLease) {
	defer lease.wg.Done()
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-lease.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := lease.lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				lockLost.Inc()
				l.logger.Error("failed to refresh reindex lock, giving it up",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				close(lease.lost)
				return
			}
		}
	}
}

type redisLease struct {
	lock *redislock.Lock
	stop chan struct{}
	lost chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (r *redisLease) Lost() <-chan struct{} { return r.lost }

func (r *redisLease) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		close(r.stop)
		r.wg.Wait()
		err = r.lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			err = nil
		}
	})
	return err
}
