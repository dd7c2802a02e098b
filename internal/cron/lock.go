package cron

import (
	"context"
	"time"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/redis"
)

const defaultLockTTL = 5 * time.Minute

// Lock coordinates exclusive scheduler cycles across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewRedisLock returns the shared owner-checked redis lock for key.
func NewRedisLock(store redis.LockStore, key string, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	lock, err := redis.NewLock(store, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
