package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reviewdash/pkg/utils"
)

const (
	summaryCacheKey     = "reviewdash:summary"
	labelCountsCacheKey = "reviewdash:label_counts"
)

// Cache holds aggregate reads between writes. Misses and cache failures are
// indistinguishable to callers.
type Cache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, v any)
	Invalidate(ctx context.Context) error
}

type NopCache struct{}

func (NopCache) Get(context.Context, string, any) bool { return false }
func (NopCache) Set(context.Context, string, any)      {}
func (NopCache) Invalidate(context.Context) error      { return nil }

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache connects to Redis when an address is configured and falls back to
// NopCache otherwise or when Redis is unreachable.
func NewCache(cfg utils.RedisConfig, logger *zap.Logger) Cache {
	if cfg.Addr == "" {
		return NopCache{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, summary cache disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return NopCache{}
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return NewRedisCache(client, cfg.SummaryTTL, logger)
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(b, dest); err != nil {
		c.logger.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, summaryCacheKey, labelCountsCacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate summary cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
