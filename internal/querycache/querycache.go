// Package querycache is a cache-aside wrapper for arbitrary computations:
// database aggregates, external API calls, feature-flag lookups.
//
// Values are stored as JSON. Backend failures and unreadable entries are
// treated as misses; compute errors are returned unchanged and never
// cached.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

type Config struct {
	// DefaultTTL applies when Get is used. Zero stores without expiry.
	DefaultTTL time.Duration
	// Coalesce collapses concurrent misses on one key into a single
	// compute call. The first caller's context governs the computation.
	// Callers that shared it each receive their own decoded copy, except
	// for values that cannot be encoded, which are handed out as is.
	Coalesce bool
}

type Cache struct {
	adapter  *cache.Adapter
	ttl      time.Duration
	coalesce bool
	group    singleflight.Group
	logger   *zap.Logger
}

func New(adapter *cache.Adapter, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		adapter:  adapter,
		ttl:      cfg.DefaultTTL,
		coalesce: cfg.Coalesce,
		logger:   logger.Named("querycache"),
	}
}

// Get returns the cached value for key, or computes, stores and returns it.
// A nil Cache computes directly.
func Get[V any](ctx context.Context, c *Cache, key string, compute ComputeFunc[V]) (V, error) {
	if c == nil {
		return compute(ctx)
	}
	return GetWithTTL(ctx, c, key, c.ttl, compute)
}

// GetWithTTL is Get with an explicit TTL for the written entry.
func GetWithTTL[V any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute ComputeFunc[V]) (V, error) {
	if c == nil {
		return compute(ctx)
	}
	if v, ok := lookup[V](ctx, c, key); ok {
		return v, nil
	}

	if !c.coalesce {
		v, _, err := fill(ctx, c, key, ttl, compute)
		return v, err
	}

	res, err, shared := c.group.Do(key, func() (any, error) {
		v, data, err := fill(ctx, c, key, ttl, compute)
		return filled[V]{value: v, data: data}, err
	})
	if err != nil {
		var zero V
		return zero, err
	}
	f, _ := res.(filled[V])
	if !shared || f.data == nil {
		return f.value, nil
	}

	c.logger.Debug("coalesced query cache miss", zap.String("cache_kind", string(cache.KindOf(key))))

	// Each sharing caller decodes its own copy so that mutating a
	// returned map, slice or pointer cannot leak into another request.
	var v V
	if err := json.Unmarshal(f.data, &v); err != nil {
		return f.value, nil
	}
	return v, nil
}

// filled carries a computed value and its encoding through singleflight.
type filled[V any] struct {
	value V
	data  []byte
}

// ClearKey deletes key so the next Get recomputes. It reports whether the
// backend acknowledged the delete.
func (c *Cache) ClearKey(ctx context.Context, key string) bool {
	if c == nil {
		return false
	}
	return c.adapter.Delete(ctx, key)
}

func lookup[V any](ctx context.Context, c *Cache, key string) (V, bool) {
	var v V

	raw, ok := c.adapter.Get(ctx, key)
	if !ok {
		metrics.QueryCacheLookupsTotal.WithLabelValues("miss").Inc()
		return v, false
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		metrics.QueryCacheLookupsTotal.WithLabelValues("malformed").Inc()
		c.logger.Warn("discarding unreadable cache entry",
			zap.String("cache_kind", string(cache.KindOf(key))),
			zap.Error(err),
		)
		var zero V
		return zero, false
	}

	metrics.QueryCacheLookupsTotal.WithLabelValues("hit").Inc()
	return v, true
}

// fill computes and schedules the write. data is nil when the value could
// not be encoded.
func fill[V any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute ComputeFunc[V]) (V, []byte, error) {
	v, err := compute(ctx)
	if err != nil {
		metrics.QueryCacheLookupsTotal.WithLabelValues("error").Inc()
		return v, nil, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		// The value is still good; it just cannot be cached.
		c.logger.Error("query cache value not serializable",
			zap.String("cache_kind", string(cache.KindOf(key))),
			zap.String("type", fmt.Sprintf("%T", v)),
			zap.Error(err),
		)
		return v, nil, nil
	}

	c.adapter.SetAsync(ctx, key, data, ttl)
	return v, data, nil
}
