package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workboard/domain"
)

// HeaderIdempotencyKey lets clients retry a bulk update without applying it twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	dedupeKeyPrefix   = "bulk-update"
	maxIdempotencyKey = 128
)

var errDuplicateRequest = errors.New("duplicate request")

// RedisDeduper stores processed idempotency keys in Redis so every instance
// sees the same keys.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("%s:%s:%s", userID, dedupeKeyPrefix, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

// Remove deletes a recorded key so the caller may retry.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// claimIdempotencyKey records key for userID. The returned release func
// forgets the key again and is a no-op when no key or deduper is present.
func claimIdempotencyKey(ctx context.Context, d Deduper, userID, key string) (func(), error) {
	key = strings.TrimSpace(key)
	if d == nil || key == "" {
		return func() {}, nil
	}
	if len(key) > maxIdempotencyKey {
		return nil, fmt.Errorf("%w: idempotency key too long", domain.ErrInvalidInput)
	}
	added, err := d.Add(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("record idempotency key: %w", err)
	}
	if !added {
		return nil, errDuplicateRequest
	}
	return func() {
		// the request context may already be gone
		if err := d.Remove(context.WithoutCancel(ctx), userID, key); err != nil {
			log.WithError(err).Warn("could not release idempotency key")
		}
	}, nil
}
