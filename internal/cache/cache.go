// Package cache is the result cache capability (spec §4.C2): a string-keyed
// TTL store fronting idempotent-by-input functions (search, scrape,
// summarize), grounded on the teacher's repository/redis_repository
// Redis wrapper style.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 6 * time.Hour

// Cache fronts idempotent functions with a Redis-backed TTL store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a Cache over an existing Redis client.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Key builds the stable key prefix:sha256(canonical-json(args)) named by
// spec §4.C2.
func Key(prefix string, args ...KV) string {
	sum := sha256.Sum256([]byte(canonicalize([]KV(args))))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Fetch returns the cached value for key if present; otherwise it calls
// compute, writes the result through, and returns it. Backing-store errors
// disable caching for this call (fail-open, spec §4.C2): compute still runs
// and its result is returned uncached.
func (c *Cache) Fetch(ctx context.Context, key string, compute func() (string, error)) (string, error) {
	useStore := c.client != nil
	if useStore {
		val, err := c.client.Get(ctx, key).Result()
		if err == nil {
			return val, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed, falling back to compute", "key", key, "error", err)
			useStore = false
		}
	}

	result, err := compute()
	if err != nil {
		return "", err
	}

	if useStore {
		if serr := c.client.Set(ctx, key, result, c.ttl).Err(); serr != nil {
			c.logger.Warn("cache write-through failed", "key", key, "error", serr)
		}
	}
	return result, nil
}
