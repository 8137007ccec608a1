package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strideworks/trainsync/pkg/database"
)

// ErrStateNotFound means the state nonce was never issued, expired, or was
// already consumed.
var ErrStateNotFound = errors.New("oauth state not found")

// OAuthStateStore tracks single-use OAuth state nonces in Redis
type OAuthStateStore struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewOAuthStateStore creates a new OAuth state store
func NewOAuthStateStore(rdb *database.Redis, ttl time.Duration) *OAuthStateStore {
	return &OAuthStateStore{redis: rdb, ttl: ttl}
}

// Put records a freshly issued nonce
func (s *OAuthStateStore) Put(ctx context.Context, nonce string) error {
	key := fmt.Sprintf("oauth:state:%s", nonce)
	if err := s.redis.Client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

// Consume deletes the nonce and reports whether it existed. A nonce can be
// consumed exactly once; replayed callbacks get ErrStateNotFound.
func (s *OAuthStateStore) Consume(ctx context.Context, nonce string) error {
	key := fmt.Sprintf("oauth:state:%s", nonce)
	_, err := s.redis.Client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrStateNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return nil
}
