package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loadcast/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// PipelineLockKey serializes pipeline runs across processes
	PipelineLockKey    = "loadcast:pipeline:lock"
	lockTTL            = 30 * time.Second
	lockAcquireTimeout = 5 * time.Second
	lockExtendInterval = 10 * time.Second
)

const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("expire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// RunLock is a Redis lock held for the duration of a pipeline run. It renews
// itself until released or until maxHold has elapsed.
type RunLock struct {
	client       *redis.Client
	key          string
	value        string
	ttl          time.Duration
	maxHold      time.Duration
	held         bool
	acquiredAt   time.Time
	stopRenew    chan struct{}
	renewStopped bool
	mu           sync.Mutex
}

// NewRunLock creates a lock on key. A nil client yields a lock that is always
// acquired, for single-instance setups.
func NewRunLock(client *redis.Client, key string, maxHold time.Duration) *RunLock {
	if key == "" {
		key = PipelineLockKey
	}
	return &RunLock{
		client:       client,
		key:          key,
		value:        uuid.NewString(),
		ttl:          lockTTL,
		maxHold:      maxHold,
		stopRenew:    make(chan struct{}),
		renewStopped: true,
	}
}

// TryLock attempts to acquire the lock without waiting for it
func (l *RunLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = make(chan struct{})
	l.renewStopped = false
	stop := l.stopRenew
	l.mu.Unlock()

	go l.renew(ctx, stop)
	return true, nil
}

// Unlock releases the lock if this instance still owns it
func (l *RunLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && l.renewStopped {
		l.mu.Unlock()
		return nil
	}
	if l.client == nil {
		l.held = false
		l.mu.Unlock()
		return nil
	}
	if !l.renewStopped {
		l.renewStopped = true
		close(l.stopRenew)
	}
	l.held = false
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		logger.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock
func (l *RunLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RunLock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(lockExtendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			holdDuration := time.Since(l.acquiredAt)
			l.mu.Unlock()

			if l.maxHold > 0 && holdDuration > l.maxHold {
				logger.WarnCtx(ctx, "lock %s held for %.0f seconds, no longer renewing", l.key, holdDuration.Seconds())
				l.markLost()
				return
			}

			result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, int(l.ttl.Seconds())).Int64()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew lock %s: %v", l.key, err)
				l.markLost()
				return
			}
			if result == 0 {
				logger.WarnCtx(ctx, "lock %s lost", l.key)
				l.markLost()
				return
			}
		}
	}
}

func (l *RunLock) markLost() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}
