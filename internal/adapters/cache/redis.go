package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeBlocksKey = "fieldcapture:blocks:active"

// Connect accepts either a redis:// URL or a bare host:port.
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
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisBlockCache stores the sorted active block list as one JSON value.
type RedisBlockCache struct {
	client redis.Cmdable
}

func NewRedisBlockCache(client redis.Cmdable) *RedisBlockCache {
	return &RedisBlockCache{client: client}
}

func (c *RedisBlockCache) GetActiveBlocks(ctx context.Context) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, activeBlocksKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var blocks []string
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false, fmt.Errorf("decode cached blocks: %w", err)
	}
	return blocks, true, nil
}

func (c *RedisBlockCache) PutActiveBlocks(ctx context.Context, blocks []string, ttl time.Duration) error {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, activeBlocksKey, raw, ttl).Err()
}

func (c *RedisBlockCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, activeBlocksKey).Err()
}
