package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireOrderLock takes the per-order mutation lock. Settlement and status
// changes on one order are serialized through this lock across instances.
func (c *Client) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:order:%s", orderID), "1", ttl).Result()
}

// ReleaseOrderLock releases the per-order mutation lock
func (c *Client) ReleaseOrderLock(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:order:%s", orderID)).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored value for an idempotency key, empty
// when the key is unknown or expired
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// CacheEstimate stores a computed claim fee estimate so repeated quote calls
// within the TTL skip the aggregation pass
func (c *Client) CacheEstimate(ctx context.Context, orderID, lineID, kind, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("estimate:%s:%s:%s", orderID, lineID, kind), value, ttl).Err()
}

// GetCachedEstimate returns a cached claim fee estimate, empty on miss
func (c *Client) GetCachedEstimate(ctx context.Context, orderID, lineID, kind string) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("estimate:%s:%s:%s", orderID, lineID, kind)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// InvalidateEstimates drops the cached estimates for one order after any
// mutation that could change the fees
func (c *Client) InvalidateEstimates(ctx context.Context, orderID string) error {
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("estimate:%s:*", orderID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
