package cache

import (
	"context"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"

	"go.uber.org/zap"
)

// InstrumentedStore wraps a Store with debug logging + latency metrics.
// Keys are logged by kind only.
type InstrumentedStore struct {
	inner Store
}

// NewInstrumentedStore returns a store that logs and records metrics.
func NewInstrumentedStore(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)
	elapsed := time.Since(start)
	metrics.CacheOperationDurationSeconds.WithLabelValues("get").Observe(elapsed.Seconds())

	result := "miss"
	if err != nil {
		result = "error"
	} else if ok {
		result = "hit"
	}

	loggerFromContext(ctx).Debug("cache_store_get",
		zap.String("cache_kind", string(KindOf(key))),
		zap.String("cache_result", result), // hit | miss | error
		zap.Duration("latency", elapsed),
	)

	return value, ok, err
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value, ttl)
	elapsed := time.Since(start)
	metrics.CacheOperationDurationSeconds.WithLabelValues("set").Observe(elapsed.Seconds())

	loggerFromContext(ctx).Debug("cache_store_set",
		zap.String("cache_kind", string(KindOf(key))),
		zap.Duration("ttl", ttl),
		zap.Int("value_bytes", len(value)),
		zap.Duration("latency", elapsed),
		zap.Bool("ok", err == nil),
	)

	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	elapsed := time.Since(start)
	metrics.CacheOperationDurationSeconds.WithLabelValues("delete").Observe(elapsed.Seconds())

	loggerFromContext(ctx).Debug("cache_store_delete",
		zap.String("cache_kind", string(KindOf(key))),
		zap.Duration("latency", elapsed),
		zap.Bool("ok", err == nil),
	)

	return err
}

// Ping forwards to the inner store when it supports it.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	if p, ok := s.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func loggerFromContext(ctx context.Context) *zap.Logger {
	return logging.L(ctx)
}
