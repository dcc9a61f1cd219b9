package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

var ErrLockNotAcquired = errors.New("system busy, please try again later (lock)")

const (
	lockAttempts   = 3
	lockRetryDelay = 100 * time.Millisecond
)

// RedisLocker serializes writers across processes with a SET NX lock per key.
type RedisLocker struct {
	client *RedisClient
	ttl    time.Duration
	logger logger.ZapLogger
}

func NewRedisLocker(client *RedisClient, ttl time.Duration, log logger.ZapLogger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, logger: log}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	value := uuid.New().String()

	acquired := false
	for i := 0; i < lockAttempts; i++ {
		ok, err := l.client.AcquireLock(ctx, key, value, l.ttl)
		if err != nil {
			l.logger.Error("failed to acquire lock redis error", zap.String("key", key), zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !acquired {
		return nil, ErrLockNotAcquired
	}

	return func() {
		// The request context may already be cancelled; release with a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.client.ReleaseLock(releaseCtx, key, value); err != nil {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// MemoryLocker is an in-process mutex keyed by string. Entries are dropped once
// nobody holds or waits for them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyedLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, kl, true) })
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyedLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
