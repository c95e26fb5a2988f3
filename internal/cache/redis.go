package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"segment-assist/internal/config"
	"segment-assist/pkg/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "segment:"

// ResultCache кэш результатов сегментации в Redis
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache создает кэш результатов. Возвращает nil, если адрес Redis не задан.
func NewResultCache(cfg config.RedisConfig) *ResultCache {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &ResultCache{
		client: client,
		ttl:    cfg.ResultTTL,
	}
}

// Ping проверяет доступность Redis
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get возвращает сохраненный результат; nil без ошибки означает промах
func (c *ResultCache) Get(ctx context.Context, key string) (*models.SegmentationResult, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached result: %w", err)
	}

	var result models.SegmentationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &result, nil
}

// Set сохраняет результат на время TTL
func (c *ResultCache) Set(ctx context.Context, key string, result *models.SegmentationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err()
}

// Close закрывает соединение с Redis
func (c *ResultCache) Close() error {
	return c.client.Close()
}
