package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"

	"go.uber.org/zap"
)

const (
	defaultOpTimeout    = 500 * time.Millisecond
	defaultWriteTimeout = 2 * time.Second
)

type AdapterConfig struct {
	// Name labels logs and metrics, e.g. "hash" or "query".
	Name string
	// Disabled turns every Get into a miss and every write into a no-op
	// before any backend call is made.
	Disabled bool
	// OpTimeout bounds each synchronous backend call.
	OpTimeout time.Duration
	// WriteTimeout bounds each background write.
	WriteTimeout time.Duration
}

// Adapter is the best-effort face of a Store. Backend failures are logged
// and counted, then reported as a miss (reads) or false (writes); they are
// never returned to the caller.
//
// Several adapters may share one Store, each with its own enable switch.
type Adapter struct {
	store  Store
	cfg    AdapterConfig
	logger *zap.Logger
	writes sync.WaitGroup
}

func NewAdapter(store Store, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("cache").With(zap.String("cache", cfg.Name)),
	}
}

// Enabled reports whether backend calls will be attempted.
func (a *Adapter) Enabled() bool {
	return a != nil && !a.cfg.Disabled && a.store != nil
}

// Get returns the stored value, or (nil, false) on miss, error or when
// the adapter is disabled.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool) {
	if !a.Enabled() {
		a.record("get", "disabled")
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()

	value, ok, err := a.store.Get(opCtx, key)
	if err != nil {
		a.record("get", "error")
		a.logger.Warn("cache get failed, treating as miss",
			zap.String("cache_kind", string(KindOf(key))),
			zap.Error(err),
		)
		return nil, false
	}
	if !ok {
		a.record("get", "miss")
		return nil, false
	}

	a.record("get", "hit")
	return value, true
}

// Set writes value and waits for the backend. It reports whether the
// write succeeded.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !a.Enabled() {
		a.record("set", "disabled")
		return false
	}
	return a.set(ctx, key, value, ttl, a.cfg.OpTimeout)
}

// SetAsync writes value on a background goroutine detached from ctx's
// cancellation. Failures are only logged.
func (a *Adapter) SetAsync(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !a.Enabled() {
		a.record("set", "disabled")
		return
	}

	bg := context.WithoutCancel(ctx)
	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		a.set(bg, key, value, ttl, a.cfg.WriteTimeout)
	}()
}

func (a *Adapter) set(ctx context.Context, key string, value []byte, ttl, timeout time.Duration) bool {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.store.Set(opCtx, key, value, ttl); err != nil {
		a.record("set", "error")
		a.logger.Warn("cache set failed",
			zap.String("cache_kind", string(KindOf(key))),
			zap.Error(err),
		)
		return false
	}
	a.record("set", "ok")
	return true
}

// Delete removes key and reports whether the backend acknowledged it.
func (a *Adapter) Delete(ctx context.Context, key string) bool {
	if !a.Enabled() {
		a.record("delete", "disabled")
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()

	if err := a.store.Delete(opCtx, key); err != nil {
		a.record("delete", "error")
		a.logger.Warn("cache delete failed",
			zap.String("cache_kind", string(KindOf(key))),
			zap.Error(err),
		)
		return false
	}
	a.record("delete", "ok")
	return true
}

// Ping reports backend connectivity. A disabled adapter is always healthy.
func (a *Adapter) Ping(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	p, ok := a.store.(Pinger)
	if !ok {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, a.cfg.OpTimeout)
	defer cancel()
	return p.Ping(opCtx)
}

// Wait blocks until every background write started so far has finished.
func (a *Adapter) Wait() {
	a.writes.Wait()
}

// Drain is Wait bounded by ctx.
func (a *Adapter) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) record(op, result string) {
	name := "default"
	if a != nil {
		name = a.cfg.Name
	}
	metrics.CacheOperationsTotal.WithLabelValues(name, op, result).Inc()
}
