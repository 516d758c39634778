package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Redis is the durable cache tier shared across replicas.  Entries are JSON
// under "<prefix>result:<hash>" with the TTL enforced by Redis itself.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedis constructs the Redis tier.
func NewRedis(client redis.UniversalClient, keyPrefix string) (*Redis, error) {
	if client == nil {
		return nil, apperrors.InvalidParam("cache: redis client is required")
	}
	return &Redis{client: client, keyPrefix: keyPrefix}, nil
}

func (r *Redis) key(hash string) string {
	return r.keyPrefix + "result:" + hash
}

func (r *Redis) Get(ctx context.Context, key string) (*rx.AnalysisResult, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "redis get")
	}

	var result rx.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// A corrupt entry is unrecoverable; drop it so the next scan
		// repopulates cleanly.
		_ = r.client.Del(ctx, r.key(key)).Err()
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "redis entry decode")
	}
	return &result, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, result *rx.AnalysisResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSerialization, "redis entry encode")
	}
	if err := r.client.Set(ctx, r.key(key), raw, ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCacheError, "redis set")
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCacheError, "redis del")
	}
	return nil
}
