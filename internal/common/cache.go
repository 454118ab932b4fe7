package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/types"
	"github.com/redis/go-redis/v9"
)

const uploadKeyPrefix = "upload:"

// Cache wraps Redis client for caching operations
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(cfg *config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Set stores a value with expiration
func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value and unmarshals it
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: key %s", types.ErrNotFound, key)
		}
		return fmt.Errorf("failed to get value: %w", err)
	}

	return json.Unmarshal([]byte(data), dest)
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// PutUpload remembers an upload's metadata for as long as the artifact may live
func (c *Cache) PutUpload(ctx context.Context, file *types.UploadedFile, ttl time.Duration) error {
	return c.Set(ctx, uploadKeyPrefix+file.ID, file, ttl)
}

// GetUpload returns the metadata recorded for an upload id
func (c *Cache) GetUpload(ctx context.Context, id string) (*types.UploadedFile, error) {
	var file types.UploadedFile
	if err := c.Get(ctx, uploadKeyPrefix+id, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
