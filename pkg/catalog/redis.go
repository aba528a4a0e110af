package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/labflow/pkg/models"
	redis "github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a cached service may lag behind the store.
const DefaultCacheTTL = 5 * time.Minute

const cacheKeyPrefix = "labflow:service:"

// RedisCache stores JSON encoded services in Redis with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client. A non-positive ttl selects
// DefaultCacheTTL.
func NewRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, id models.StorageID) (*models.Service, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to read cached service %s: %w", id, err)
	}

	var service models.Service
	if err := json.Unmarshal(data, &service); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached service %s: %w", id, err)
	}

	return &service, true, nil
}

func (c *RedisCache) Set(ctx context.Context, service *models.Service) error {
	data, err := json.Marshal(service)
	if err != nil {
		return fmt.Errorf("failed to encode service %s: %w", service.ID, err)
	}

	return c.client.Set(ctx, cacheKey(service.ID), data, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, ids ...models.StorageID) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKey(id)
	}

	return c.client.Del(ctx, keys...).Err()
}

// Flush deletes every cached service.
func (c *RedisCache) Flush(ctx context.Context) error {
	var keys []string

	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached services: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheKey(id models.StorageID) string {
	return cacheKeyPrefix + string(id)
}
