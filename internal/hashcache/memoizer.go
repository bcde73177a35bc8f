// Package hashcache memoizes the full-round user identifier hash behind
// the shared cache backend.
//
// The backend only ever sees the single-round hash of a value (as part of
// the key) and the full-round hash (as the value); raw input never leaves
// the process.
package hashcache

import (
	"context"
	"time"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/metrics"

	"go.uber.org/zap"
)

// HashFunc computes an iterated hash. hashing.Hash is the production value.
type HashFunc func(input string, rounds int) hashing.HashedValue

type Config struct {
	// FullRounds is the round count that gets memoized. Default: hashing.FullRounds.
	FullRounds int
	// Salt is appended to IP addresses before hashing.
	Salt string
	// IPEntryTTL is the expiry of memoized IP hashes. Zero stores them
	// without expiry.
	IPEntryTTL time.Duration
}

type Option func(*Memoizer)

// WithHashFunc replaces the hash primitive, e.g. to count invocations.
func WithHashFunc(h HashFunc) Option {
	return func(m *Memoizer) {
		if h != nil {
			m.hash = h
		}
	}
}

type Memoizer struct {
	cache      *cache.Adapter
	fullRounds int
	salt       string
	ipTTL      time.Duration
	hash       HashFunc
	logger     *zap.Logger
}

// New creates a Memoizer. A nil or disabled adapter makes every call
// compute directly.
func New(adapter *cache.Adapter, cfg Config, logger *zap.Logger, opts ...Option) *Memoizer {
	if cfg.FullRounds <= 0 {
		cfg.FullRounds = hashing.FullRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memoizer{
		cache:      adapter,
		fullRounds: cfg.FullRounds,
		salt:       cfg.Salt,
		ipTTL:      cfg.IPEntryTTL,
		hash:       hashing.Hash,
		logger:     logger.Named("hashcache"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FullRounds returns the memoized round count.
func (m *Memoizer) FullRounds() int { return m.fullRounds }

// Hash returns value hashed FullRounds times, from cache when possible.
func (m *Memoizer) Hash(ctx context.Context, value string) hashing.HashedValue {
	return m.HashRounds(ctx, value, m.fullRounds)
}

// HashRounds returns value hashed rounds times. Hit and miss return the
// same result; only latency differs.
func (m *Memoizer) HashRounds(ctx context.Context, value string, rounds int) hashing.HashedValue {
	return m.hashRounds(ctx, value, rounds, 0)
}

// hashRounds stores a miss with ttl; zero keeps the entry forever.
func (m *Memoizer) hashRounds(ctx context.Context, value string, rounds int, ttl time.Duration) hashing.HashedValue {
	// Only full-strength hashes are cached. A cache entry must always mean
	// FullRounds total rounds, so any other count skips the cache entirely.
	if rounds != m.fullRounds {
		metrics.HashCacheLookupsTotal.WithLabelValues("bypass").Inc()
		return m.hash(value, rounds)
	}

	singleRound := m.hash(value, 1)
	if m.fullRounds == 1 {
		return singleRound
	}
	key := cache.HashKey(string(singleRound))

	if raw, ok := m.cache.Get(ctx, key); ok {
		if hashing.IsHashedValue(string(raw)) {
			metrics.HashCacheLookupsTotal.WithLabelValues("hit").Inc()
			return hashing.HashedValue(raw)
		}
		metrics.HashCacheLookupsTotal.WithLabelValues("malformed").Inc()
		m.logger.Warn("discarding malformed cached hash", zap.Int("bytes", len(raw)))
	} else {
		metrics.HashCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	// One round is already spent on singleRound.
	result := m.hash(string(singleRound), m.fullRounds-1)
	m.cache.SetAsync(ctx, key, []byte(result), ttl)

	return result
}

// HashedIP hashes ip concatenated with the process-wide salt. Entries it
// writes expire after IPEntryTTL.
func (m *Memoizer) HashedIP(ctx context.Context, ip string) hashing.HashedValue {
	return m.hashRounds(ctx, ip+m.salt, m.fullRounds, m.ipTTL)
}
