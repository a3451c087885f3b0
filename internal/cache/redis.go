// Package cache holds the hot tags caches.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/redis/go-redis/v9"
)

// hotTagsKey is a hash of limit -> JSON encoded tag list.
const hotTagsKey = "moments:hot_tags"

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.With(logger.Fields{"addr": cfg.Addr, "db": cfg.DB}).Info(ctx, "Redis connection established")
	return client, nil
}

// RedisHotTags caches hot tag lists in a single Redis hash so one DEL invalidates every limit.
type RedisHotTags struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisHotTags creates the cache.
func NewRedisHotTags(client redis.Cmdable, ttl time.Duration) *RedisHotTags {
	return &RedisHotTags{client: client, ttl: ttl}
}

// Get returns the cached list for limit, if any.
func (c *RedisHotTags) Get(ctx context.Context, limit int) ([]domain.TagCount, bool, error) {
	raw, err := c.client.HGet(ctx, hotTagsKey, strconv.Itoa(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tags []domain.TagCount
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, false, fmt.Errorf("decode cached hot tags: %w", err)
	}
	return tags, true, nil
}

// Set stores the list for limit and refreshes the hash TTL.
func (c *RedisHotTags) Set(ctx context.Context, limit int, tags []domain.TagCount) error {
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, hotTagsKey, strconv.Itoa(limit), raw)
	if c.ttl > 0 {
		pipe.Expire(ctx, hotTagsKey, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops every cached list.
func (c *RedisHotTags) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, hotTagsKey).Err()
}
