// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
)

type Config struct {
	Port         string
	CacheBackend string // "memory" or "redis"

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	RedisOpTimeout time.Duration
	RedisExpiry    time.Duration

	DisableHashCache   bool
	DisableQueryCache  bool
	QueryCacheCoalesce bool

	GlobalSalt  string
	HashRounds  int
	HashedIPTTL time.Duration

	VideoAPIBaseURL    string
	VideoAPITimeout    time.Duration
	VideoAPIMaxRetries int
}

// Load reads the environment. Every malformed value is reported, not just
// the first one.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(lookup func(string) string) (Config, error) {
	getenv := func(key, def string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}
	integer := func(key, def string) int {
		n, err := strconv.Atoi(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	boolean := func(key string) bool {
		b, err := strconv.ParseBool(getenv(key, "false"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}

	cfg := Config{
		Port:         getenv("PORT", "8080"),
		CacheBackend: strings.ToLower(getenv("CACHE_BACKEND", cache.BackendMemory)),

		RedisAddr:      getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  lookup("REDIS_PASSWORD"),
		RedisDB:        integer("REDIS_DB", "0"),
		RedisKeyPrefix: getenv("REDIS_KEY_PREFIX", "sb"),
		RedisOpTimeout: duration("REDIS_OP_TIMEOUT", "500ms"),
		RedisExpiry:    duration("REDIS_EXPIRY", "24h"),

		DisableHashCache:   boolean("DISABLE_HASH_CACHE"),
		DisableQueryCache:  boolean("DISABLE_QUERY_CACHE"),
		QueryCacheCoalesce: boolean("QUERY_CACHE_COALESCE"),

		GlobalSalt:  lookup("GLOBAL_SALT"),
		HashRounds:  integer("HASH_ROUNDS", strconv.Itoa(hashing.FullRounds)),
		HashedIPTTL: duration("HASHED_IP_TTL", "1h"),

		VideoAPIBaseURL:    getenv("VIDEO_API_BASE_URL", "https://api.bilibili.com"),
		VideoAPITimeout:    duration("VIDEO_API_TIMEOUT", "5s"),
		VideoAPIMaxRetries: integer("VIDEO_API_MAX_RETRIES", "2"),
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	switch c.CacheBackend {
	case cache.BackendMemory, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND: unknown backend %q", c.CacheBackend))
	}
	if c.GlobalSalt == "" {
		errs = append(errs, errors.New("GLOBAL_SALT is required"))
	}
	if c.HashRounds < 1 {
		errs = append(errs, fmt.Errorf("HASH_ROUNDS: must be >= 1, got %d", c.HashRounds))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB: must be >= 0, got %d", c.RedisDB))
	}
	if c.RedisOpTimeout < 0 || c.RedisExpiry < 0 || c.VideoAPITimeout < 0 || c.HashedIPTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.VideoAPIMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("VIDEO_API_MAX_RETRIES: must be >= 0, got %d", c.VideoAPIMaxRetries))
	}
	return errs
}

// MarshalLogObject logs the config without secrets.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("port", c.Port)
	enc.AddString("cache_backend", c.CacheBackend)
	if c.CacheBackend == cache.BackendRedis {
		enc.AddString("redis_addr", c.RedisAddr)
		enc.AddInt("redis_db", c.RedisDB)
		enc.AddString("redis_key_prefix", c.RedisKeyPrefix)
	}
	enc.AddDuration("redis_op_timeout", c.RedisOpTimeout)
	enc.AddDuration("query_cache_ttl", c.RedisExpiry)
	enc.AddBool("hash_cache_disabled", c.DisableHashCache)
	enc.AddBool("query_cache_disabled", c.DisableQueryCache)
	enc.AddBool("query_cache_coalesce", c.QueryCacheCoalesce)
	enc.AddInt("hash_rounds", c.HashRounds)
	enc.AddDuration("hashed_ip_ttl", c.HashedIPTTL)
	enc.AddString("video_api_base_url", c.VideoAPIBaseURL)
	return nil
}

var _ zapcore.ObjectMarshaler = Config{}

// Field is shorthand for logging the config.
func (c Config) Field() zap.Field {
	return zap.Object("config", c)
}
