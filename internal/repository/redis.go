package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vitalsync/internal/config"
	"vitalsync/internal/models"
)

// RedisSyncStateRepository mirrors last-sync markers in Redis so a
// restarted process (or a second instance) picks up where the last
// cycle left off without hitting the durable store.
type RedisSyncStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSyncStateRepository(client *redis.Client, ttl time.Duration) *RedisSyncStateRepository {
	return &RedisSyncStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func syncKey(category models.SampleCategory) string {
	return fmt.Sprintf("sync:last:%s", category)
}

func (r *RedisSyncStateRepository) LastSync(ctx context.Context, category models.SampleCategory) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, syncKey(category)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync from redis: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync value: %w", err)
	}
	return t, nil
}

func (r *RedisSyncStateRepository) SetLastSync(ctx context.Context, category models.SampleCategory, t time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	val := t.UTC().Format(time.RFC3339Nano)
	if err := r.client.Set(ctx, syncKey(category), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set last sync in redis: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
