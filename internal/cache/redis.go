package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/config"
)

// ErrCacheMiss is returned by RedisClient.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache: key not found")

// RedisClient abstracts the primary-tier operations the Store needs.
// This allows a real go-redis client or an in-memory fake to be used
// interchangeably.
type RedisClient interface {
	// Get retrieves the value of a key. Returns ErrCacheMiss if absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Del deletes keys and returns the number removed.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Scan iterates keys matching a glob pattern.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close shuts down the client.
	Close() error
}

// redisAdapter wraps a go-redis client to implement RedisClient.
type redisAdapter struct {
	client *goredis.Client
}

// NewRedisClient connects a go-redis client using the given configuration.
func NewRedisClient(cfg config.RedisConfig) RedisClient {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &redisAdapter{client: client}
}

func (r *redisAdapter) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (r *redisAdapter) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Del(ctx, keys...).Result()
}

func (r *redisAdapter) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return r.client.Scan(ctx, cursor, match, count).Result()
}

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisAdapter) Close() error {
	return r.client.Close()
}
