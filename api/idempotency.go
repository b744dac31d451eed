package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	dedupeKeyPrefix      = "idem"
	maxIdempotencyKeyLen = 128
)

var (
	errDuplicateRequest  = errors.New("Duplicate request")
	errBadIdempotencyKey = errors.New("Invalid idempotency key")
)

// RedisDeduper stores idempotency keys in Redis so every instance rejects a
// replayed create request.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
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

// Remove deletes a previously recorded key so the client may retry.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// claimIdempotencyKey records the request's Idempotency-Key, if any. The
// returned release func must be called when the mutation fails.
func claimIdempotencyKey(c echo.Context, deduper Deduper, userID string, logger *log.Logger) (func(), error) {
	noop := func() {}
	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	if key == "" || deduper == nil {
		return noop, nil
	}
	if len(key) > maxIdempotencyKeyLen {
		return noop, errBadIdempotencyKey
	}
	added, err := deduper.Add(c.Request().Context(), userID, key)
	if err != nil {
		return noop, fmt.Errorf("record idempotency key: %w", err)
	}
	if !added {
		return noop, errDuplicateRequest
	}
	return func() {
		if err := deduper.Remove(context.Background(), userID, key); err != nil {
			logger.WithFields(log.Fields{"user": userID, "key": key, "error": err.Error()}).Error("dedupe rollback failed")
		}
	}, nil
}
