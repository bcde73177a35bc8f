package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/config"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/features"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/handlers"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashcache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/httpserver"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/querycache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/videodetails"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	logger.Info("loaded config", cfg.Field())

	// ----- Metrics -----
	metrics.Register(nil)

	// ----- Cache backend -----
	rawStore, closeStore, err := openStore(cfg, logger, 5*time.Second)
	if err != nil {
		return err
	}
	defer closeStore()
	store := cache.NewInstrumentedStore(rawStore)

	hashAdapter := cache.NewAdapter(store, cache.AdapterConfig{
		Name:      "hash",
		Disabled:  cfg.DisableHashCache,
		OpTimeout: cfg.RedisOpTimeout,
	}, logger)
	queryAdapter := cache.NewAdapter(store, cache.AdapterConfig{
		Name:      "query",
		Disabled:  cfg.DisableQueryCache,
		OpTimeout: cfg.RedisOpTimeout,
	}, logger)

	// ----- Domain services -----
	memoizer := hashcache.New(hashAdapter, hashcache.Config{
		FullRounds: cfg.HashRounds,
		Salt:       cfg.GlobalSalt,
		IPEntryTTL: cfg.HashedIPTTL,
	}, logger)

	queries := querycache.New(queryAdapter, querycache.Config{
		DefaultTTL: cfg.RedisExpiry,
		Coalesce:   cfg.QueryCacheCoalesce,
	}, logger)

	videoClient, err := videodetails.NewClient(videodetails.Config{
		BaseURL:         cfg.VideoAPIBaseURL,
		UpstreamTimeout: cfg.VideoAPITimeout,
		MaxRetries:      cfg.VideoAPIMaxRetries,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := videoClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	videos := videodetails.NewService(videoClient, queries, logger)
	featureFlags := features.NewService(features.NewMemoryStore(), queries)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Handlers{
		User:     handlers.NewUserHandler(memoizer),
		Video:    handlers.NewVideoHandler(videos),
		Feature:  handlers.NewFeatureHandler(memoizer, featureFlags),
		Health:   handlers.NewHealthHandler(store),
		IPHasher: memoizer,
	})

	// ----- HTTP server -----
	srv := httpserver.NewServer(":"+cfg.Port, r)

	logger.Info("starting server", zap.String("addr", srv.Addr))

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	// Let in-flight cache writes land before the backend is closed.
	for _, a := range []*cache.Adapter{hashAdapter, queryAdapter} {
		if err := a.Drain(shutdownCtx); err != nil {
			logger.Warn("cache writes still pending at shutdown", zap.Error(err))
		}
	}

	logger.Info("server shutdown complete")
	return nil
}

// openStore builds the shared cache backend. An unreachable Redis is only
// logged: the cache is best-effort, go-redis reconnects on later calls,
// and /healthz reports the outage meanwhile.
func openStore(cfg config.Config, logger *zap.Logger, pingTimeout time.Duration) (cache.Store, func(), error) {
	var closers []func() error

	var redisClient redis.UniversalClient
	if cfg.CacheBackend == cache.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client.Close)

		if err := pingRedis(client, pingTimeout); err != nil {
			logger.Warn("redis unreachable at startup, serving uncached until it recovers",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		} else {
			logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
		}
		redisClient = client
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	store, err := cache.NewStore(cache.Config{
		Backend:         cfg.CacheBackend,
		Prefix:          cfg.RedisKeyPrefix,
		CleanupInterval: time.Minute,
	}, redisClient)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		closers = append(closers, closer.Close)
	}
	return store, closeAll, nil
}

// pingRedis reports whether Redis answers within timeout.
func pingRedis(client redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
