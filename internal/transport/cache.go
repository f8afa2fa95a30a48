package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a shared store of fetched bundles keyed by URL
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, data []byte) error
	Delete(ctx context.Context, url string) error
}

const (
	defaultKeyPrefix = "attacknav:bundle:"
	defaultCacheTTL  = 24 * time.Hour
)

// RedisOptions configures the Redis connection
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// TTL bounds how long a bundle stays cached
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration
}

// RedisCache stores bundles in Redis with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, opts.TTL), nil
}

// NewRedisCacheFromClient wraps an existing client. A zero ttl uses one day.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: defaultKeyPrefix}
}

// Get returns the cached bundle for a URL
func (c *RedisCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache for %s: %w", url, err)
	}
	return data, true, nil
}

// Set stores a bundle under its URL
func (c *RedisCache) Set(ctx context.Context, url string, data []byte) error {
	if err := c.client.Set(ctx, c.prefix+url, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", url, err)
	}
	return nil
}

// Delete evicts a URL
func (c *RedisCache) Delete(ctx context.Context, url string) error {
	if err := c.client.Del(ctx, c.prefix+url).Err(); err != nil {
		return fmt.Errorf("failed to evict %s: %w", url, err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
