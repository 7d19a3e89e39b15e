package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/twgov-oa/question-tracker/pkg/config"
)

// ErrMiss is returned when a key is absent or its entry cannot be decoded.
var ErrMiss = errors.New("cache: miss")

const pingTimeout = 5 * time.Second

// Cache wraps a Redis client with the entry TTL used for the department
// directory. A nil *Cache is valid: reads miss and writes are dropped, so
// callers fall through to the database.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New dials Redis and returns a Cache holding the configured entry TTL.
func New(cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Enabled reports whether a backing client exists.
func (c *Cache) Enabled() bool {
	return c != nil
}

// GetJSON decodes the entry at key into dest. Absent keys and corrupt
// entries both surface as ErrMiss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if c == nil {
		return ErrMiss
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return ErrMiss
	}
	return nil
}

// SetJSON stores value at key for the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Delete drops a key. Directory mutations use this to invalidate readers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
