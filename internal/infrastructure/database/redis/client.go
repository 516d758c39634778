// Package redis wires the go-redis client from configuration.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dosewise/rxlens/internal/config"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// NewClient builds a Redis client from cfg and verifies connectivity with a
// ping before returning it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "redis ping failed")
	}
	return client, nil
}
