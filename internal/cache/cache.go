// Package cache implements the content-addressed result cache.  Keys are the
// SHA-256 of the uploaded photo bytes, so an identical re-upload is answered
// without re-running extraction.  Two tiers: a per-process memory tier for
// hot keys and an optional Redis tier shared across replicas.
package cache

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
	"github.com/dosewise/rxlens/pkg/types/rx"
)

// Clock abstracts time for expiry decisions so tests can advance it
// deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Store is one cache tier.
type Store interface {
	Get(ctx context.Context, key string) (*rx.AnalysisResult, bool, error)
	Set(ctx context.Context, key string, result *rx.AnalysisResult, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Tiered composes the memory tier with an optional durable tier.  Reads
// check memory first and backfill it on a durable hit; writes and
// invalidations go to both.
type Tiered struct {
	local   Store
	durable Store // may be nil
	jitter  float64
	logger  logging.Logger

	mu  sync.RWMutex
	ttl time.Duration
}

// NewTiered constructs the tiered cache.  local is required; durable may be
// nil for single-replica deployments.
func NewTiered(local, durable Store, ttl time.Duration, jitterFraction float64, logger logging.Logger) (*Tiered, error) {
	if local == nil {
		return nil, apperrors.InvalidParam("cache: local store is required")
	}
	if ttl <= 0 {
		return nil, apperrors.InvalidParam("cache: ttl must be positive")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Tiered{
		local:   local,
		durable: durable,
		ttl:     ttl,
		jitter:  jitterFraction,
		logger:  logger.Named("cache"),
	}, nil
}

// Get returns the cached result for key, if any.  Durable-tier errors are
// treated as misses; the cache never fails a scan.
func (t *Tiered) Get(ctx context.Context, key string) (*rx.AnalysisResult, bool) {
	if result, ok, err := t.local.Get(ctx, key); err == nil && ok {
		return result, true
	}
	if t.durable == nil {
		return nil, false
	}

	result, ok, err := t.durable.Get(ctx, key)
	if err != nil {
		t.logger.Warn("durable cache read failed", logging.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if err := t.local.Set(ctx, key, result, t.jitteredTTL()); err != nil {
		t.logger.Warn("local cache backfill failed", logging.Err(err))
	}
	return result, true
}

// Set stores result under key in both tiers.  Failures are logged and
// swallowed; a cache write must never fail the scan that produced the
// result.
func (t *Tiered) Set(ctx context.Context, key string, result *rx.AnalysisResult) {
	ttl := t.jitteredTTL()
	if err := t.local.Set(ctx, key, result, ttl); err != nil {
		t.logger.Warn("local cache write failed", logging.Err(err))
	}
	if t.durable != nil {
		if err := t.durable.Set(ctx, key, result, ttl); err != nil {
			t.logger.Warn("durable cache write failed", logging.Err(err))
		}
	}
}

// Invalidate removes key from both tiers.  The durable tier's error is
// returned because a failed invalidation means stale data may still be
// served elsewhere.
func (t *Tiered) Invalidate(ctx context.Context, key string) error {
	if err := t.local.Invalidate(ctx, key); err != nil {
		t.logger.Warn("local cache invalidation failed", logging.Err(err))
	}
	if t.durable == nil {
		return nil
	}
	if err := t.durable.Invalidate(ctx, key); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeCacheError, "durable cache invalidation")
	}
	return nil
}

// SetTTL replaces the TTL applied to future writes.  Existing entries keep
// the expiry they were written with.  Safe for concurrent use; this is the
// hot-reload path for the cache TTL setting.
func (t *Tiered) SetTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.InvalidParam("cache: ttl must be positive")
	}
	t.mu.Lock()
	t.ttl = ttl
	t.mu.Unlock()
	return nil
}

// jitteredTTL spreads expiry by ±jitter so entries written together do not
// expire together.
func (t *Tiered) jitteredTTL() time.Duration {
	t.mu.RLock()
	ttl := t.ttl
	t.mu.RUnlock()
	if t.jitter <= 0 {
		return ttl
	}
	spread := (rand.Float64()*2 - 1) * t.jitter
	return time.Duration(float64(ttl) * (1 + spread))
}
