package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strideworks/trainsync/pkg/database"
)

// ErrPassInProgress means another sync pass already holds the lock for this
// user and provider.
var ErrPassInProgress = errors.New("sync pass already in progress")

// Locker serializes sync passes per (user, provider).
type Locker interface {
	Acquire(ctx context.Context, userID, provider string) error
	Release(ctx context.Context, userID, provider string) error
}

// PassLock serializes sync passes per (user, provider) via Redis SET NX.
// The TTL bounds how long a crashed pass can block the next one.
type PassLock struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewPassLock creates a new pass lock
func NewPassLock(rdb *database.Redis, ttl time.Duration) *PassLock {
	return &PassLock{redis: rdb, ttl: ttl}
}

// Acquire takes the lock or returns ErrPassInProgress
func (l *PassLock) Acquire(ctx context.Context, userID, provider string) error {
	key := fmt.Sprintf("sync:lock:%s:%s", userID, provider)
	ok, err := l.redis.Client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !ok {
		return ErrPassInProgress
	}
	return nil
}

// Release drops the lock. Best effort: an expired lock is already gone.
func (l *PassLock) Release(ctx context.Context, userID, provider string) error {
	key := fmt.Sprintf("sync:lock:%s:%s", userID, provider)
	if err := l.redis.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}
