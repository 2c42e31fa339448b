package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
)

// checkAndDeleteScript deletes the key only while it still holds the
// expected value, so an expired lock grabbed by someone else survives.
const checkAndDeleteScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisCache backs the shared cache level with a Redis instance.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(config domain.RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	if config.Addr == "" {
		return nil, domain.NewValidationError("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.NewTransientError("redis ping failed", err)
	}

	return &RedisCache{
		client: client,
		logger: logger.With("component", "shared-cache"),
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, domain.NewTransientError("redis get failed", err)
	}
	if errors.Is(getCmd.Err(), redis.Nil) {
		return nil, 0, false, nil
	}
	if err := getCmd.Err(); err != nil {
		return nil, 0, false, domain.NewTransientError("redis get failed", err)
	}

	value, err := getCmd.Bytes()
	if err != nil {
		return nil, 0, false, domain.NewTransientError("redis get failed", err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return value, ttl, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, domain.TagKey(tag), key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return domain.NewTransientError("redis set failed", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return domain.NewTransientError("redis delete failed", err)
	}
	return nil
}

func (r *RedisCache) DeleteByTag(ctx context.Context, tag string) (int, error) {
	tagKey := domain.TagKey(tag)

	members, err := r.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return 0, domain.NewTransientError("redis tag lookup failed", err)
	}
	if len(members) == 0 {
		if err := r.client.Del(ctx, tagKey).Err(); err != nil {
			return 0, domain.NewTransientError("redis tag delete failed", err)
		}
		return 0, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, members...)
	pipe.Del(ctx, tagKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, domain.NewTransientError("redis tag delete failed", err)
	}
	return len(members), nil
}

func (r *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	acquired, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, domain.NewTransientError("redis setnx failed", err)
	}
	return acquired, nil
}

func (r *RedisCache) CheckAndDelete(ctx context.Context, key, value string) (bool, error) {
	result, err := r.client.Eval(ctx, checkAndDeleteScript, []string{key}, value).Result()
	if err != nil {
		return false, domain.NewTransientError("redis check-and-delete failed", err)
	}
	deleted, ok := result.(int64)
	return ok && deleted == 1, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.NewTransientError("redis ping failed", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

var _ ports.SharedCache = (*RedisCache)(nil)
