package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/agastya71/mysl-pos-project-sub005/internal/domain"
)

type RedisReorderReportCache struct {
	client *redis.Client
}

func NewRedisReorderReportCache(addr string, password string, db int) *RedisReorderReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisReorderReportCache{client: client}
}

func (c *RedisReorderReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReorderReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReorderReportCache) Get(ctx context.Context, key string) (*domain.ReorderReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.ReorderReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReorderReportCache) Set(ctx context.Context, key string, value *domain.ReorderReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
