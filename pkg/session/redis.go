package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection settings for the session registry
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// NewClient creates a Redis client and verifies connectivity
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisRegistry implements Registry on a Redis client. TTL enforcement is
// delegated to Redis key expiry.
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry creates a registry backed by the given client
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// key builds the composite session key, e.g. "session:admin:42"
func key(kind, id string) string {
	return fmt.Sprintf("session:%s:%s", kind, id)
}

// Get retrieves the live session record for a principal
func (r *RedisRegistry) Get(ctx context.Context, kind, id string) (*Record, error) {
	data, err := r.client.Get(ctx, key(kind, id)).Result()
	if err == redis.Nil {
		return nil, nil // no active session
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		// Corrupt value: drop it so the principal can log in again
		r.client.Del(ctx, key(kind, id))
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}

	return &record, nil
}

// Set stores a session record with the given TTL, replacing any prior record
func (r *RedisRegistry) Set(ctx context.Context, kind, id string, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := r.client.Set(ctx, key(kind, id), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Delete removes a session record; absent keys are not an error
func (r *RedisRegistry) Delete(ctx context.Context, kind, id string) error {
	if err := r.client.Del(ctx, key(kind, id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Close releases the underlying client
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
