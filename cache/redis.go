// Package cache holds the Redis-backed idempotency keys and pricing cache,
// plus in-process equivalents for tests and single-instance runs.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	models "github.com/phillip/iinsaf-marketplace-go/models"
)

const (
	idempotencyPrefix = "iinsaf:idem:"
	pricingKey        = "iinsaf:pricing"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Claim sets key only if it is absent.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, "1", ttl).Result()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}

type RedisPricingCache struct {
	client *redis.Client
}

func NewRedisPricingCache(client *redis.Client) *RedisPricingCache {
	return &RedisPricingCache{client: client}
}

func (c *RedisPricingCache) Get(ctx context.Context) (models.PricingConfig, bool, error) {
	raw, err := c.client.Get(ctx, pricingKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.PricingConfig{}, false, nil
		}
		return models.PricingConfig{}, false, err
	}
	var cfg models.PricingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.PricingConfig{}, false, err
	}
	cfg.ID = models.PricingConfigID
	return cfg, true, nil
}

func (c *RedisPricingCache) Put(ctx context.Context, cfg models.PricingConfig, ttl time.Duration) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pricingKey, raw, ttl).Err()
}

func (c *RedisPricingCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, pricingKey).Err()
}
