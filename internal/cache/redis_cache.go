package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stokbatch/backend/internal/domain"
)

type RedisBatchSnapshotCache struct {
	client *redis.Client
}

func NewRedisBatchSnapshotCache(addr string, password string, db int) *RedisBatchSnapshotCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBatchSnapshotCache{client: client}
}

func (c *RedisBatchSnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBatchSnapshotCache) Close() error {
	return c.client.Close()
}

func snapshotKey(companyID string) string {
	return "batches:" + companyID
}

func (c *RedisBatchSnapshotCache) Get(ctx context.Context, companyID string) ([]domain.PurchaseBatch, bool, error) {
	val, err := c.client.Get(ctx, snapshotKey(companyID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var batches []domain.PurchaseBatch
	if err := json.Unmarshal([]byte(val), &batches); err != nil {
		return nil, false, err
	}
	return batches, true, nil
}

func (c *RedisBatchSnapshotCache) Set(ctx context.Context, companyID string, batches []domain.PurchaseBatch, ttl time.Duration) error {
	if batches == nil {
		return nil
	}
	payload, err := json.Marshal(batches)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(companyID), payload, ttl).Err()
}

func (c *RedisBatchSnapshotCache) Invalidate(ctx context.Context, companyID string) error {
	return c.client.Del(ctx, snapshotKey(companyID)).Err()
}
