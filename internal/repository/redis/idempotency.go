package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pipeline:idempotency:"

// IdempotencyStore implements repository.IdempotencyStore using Redis.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a new Redis-backed idempotency store.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Reserve claims key for runID with SET NX. When the key is held, the
// holder's run id is returned with ok false.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, runID string, ttl time.Duration) (string, bool, error) {
	k := keyPrefix + key

	// The holder can expire between SETNX and GET; try again in that case.
	for range 3 {
		ok, err := s.client.SetNX(ctx, k, runID, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis setnx idempotency key: %w", err)
		}
		if ok {
			return runID, true, nil
		}

		holder, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("redis get idempotency key: %w", err)
		}
		return holder, false, nil
	}
	return "", false, fmt.Errorf("reserve idempotency key %q: key kept expiring", key)
}

// Release removes the key so that it can be reused.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del idempotency key: %w", err)
	}
	return nil
}
