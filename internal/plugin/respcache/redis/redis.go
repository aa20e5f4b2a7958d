// Package redis provides the shared response-cache backend for multi-replica
// deployments.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/recallhq/recall-service/internal/config"
	registryrespcache "github.com/recallhq/recall-service/internal/registry/respcache"
)

func init() {
	registryrespcache.Register(registryrespcache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registryrespcache.Backend, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache backend: RECALL_SERVICE_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache backend: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache backend: ping failed: %w", err)
	}
	return &redisBackend{client: client}, nil
}

type redisBackend struct {
	client *goredis.Client
}

func cacheKey(key string) string {
	return "resp-cache:" + key
}

func (b *redisBackend) Available() bool { return true }

func (b *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, cacheKey(key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, cacheKey(key), value, ttl).Err()
}

func (b *redisBackend) Remove(ctx context.Context, key string) error {
	return b.client.Del(ctx, cacheKey(key)).Err()
}

var _ registryrespcache.Backend = (*redisBackend)(nil)
