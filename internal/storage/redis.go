package storage

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/piwi3910/nfvacct/internal/config"
)

// NewRedisClient creates the Redis client shared by the stream bus, the dead
// letter stream and the aggregator lock.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("redis addresses cannot be empty")
	}

	var client redis.UniversalClient

	if cfg.Mode == "sentinel" {
		// Redis Sentinel mode for HA
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addresses,
			Password:      cfg.Password,
			DB:            cfg.DB,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	return client, nil
}

// RedisPing returns a health check function for the client.
func RedisPing(client redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return nil
	}
}
