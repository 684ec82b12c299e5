package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const reapLockKey = "reaper:lock"

var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// ReapLock is a SETNX lease that lets one instance run the expiry reaper per interval.
// The lease is never renewed: it simply expires before the next tick.
type ReapLock struct {
	rdb        *goredis.Client
	instanceID string
	ttl        time.Duration
}

func NewReapLock(rdb *goredis.Client, instanceID string, ttl time.Duration) *ReapLock {
	return &ReapLock{rdb: rdb, instanceID: instanceID, ttl: ttl}
}

// TryAcquire reports whether this instance now holds the lease.
func (l *ReapLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, reapLockKey, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire reap lock: %w", err)
	}
	return ok, nil
}

// Release drops the lease if this instance still holds it. Called on shutdown.
func (l *ReapLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{reapLockKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release reap lock: %w", err)
	}
	return nil
}
