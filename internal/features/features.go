package features

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/cache"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/hashing"
	"github.com/Liuzierjun/BilibiliSponsorBlockServer/internal/querycache"
)

// Feature is a per-user capability granted by moderators.
type Feature int

const (
	ChapterSubmitter Feature = iota
	FillerSubmitter
	DeArrowTitleSubmitter
)

var ErrInvalidFeature = errors.New("features: invalid feature")

func (f Feature) String() string {
	switch f {
	case ChapterSubmitter:
		return "chapterSubmitter"
	case FillerSubmitter:
		return "fillerSubmitter"
	case DeArrowTitleSubmitter:
		return "deArrowTitleSubmitter"
	default:
		return fmt.Sprintf("Feature(%d)", int(f))
	}
}

func (f Feature) Valid() bool {
	return f >= ChapterSubmitter && f <= DeArrowTitleSubmitter
}

// Store answers whether a user has a feature. It is the source of truth;
// in production it is the userFeatures table.
type Store interface {
	UserHasFeature(ctx context.Context, userID hashing.HashedValue, feature Feature) (bool, error)
}

type Service struct {
	store Store
	cache *querycache.Cache
}

func NewService(store Store, qc *querycache.Cache) *Service {
	return &Service{store: store, cache: qc}
}

// HasFeature reports whether userID holds feature, reading through the
// query cache.
func (s *Service) HasFeature(ctx context.Context, userID hashing.HashedValue, feature Feature) (bool, error) {
	if !feature.Valid() {
		return false, fmt.Errorf("%w: %d", ErrInvalidFeature, int(feature))
	}
	return querycache.Get(ctx, s.cache, Key(userID, feature), func(ctx context.Context) (bool, error) {
		return s.store.UserHasFeature(ctx, userID, feature)
	})
}

// Invalidate drops the cached answer after a grant or revoke.
func (s *Service) Invalidate(ctx context.Context, userID hashing.HashedValue, feature Feature) bool {
	return s.cache.ClearKey(ctx, Key(userID, feature))
}

// Key is the cache key for one (user, feature) pair.
func Key(userID hashing.HashedValue, feature Feature) string {
	return cache.UserFeatureKey(string(userID), feature.String())
}

// MemoryStore is a Store backed by a map, for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[hashing.HashedValue]map[Feature]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[hashing.HashedValue]map[Feature]struct{})}
}

func (m *MemoryStore) Grant(userID hashing.HashedValue, feature Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[userID] == nil {
		m.grants[userID] = make(map[Feature]struct{})
	}
	m.grants[userID][feature] = struct{}{}
}

func (m *MemoryStore) Revoke(userID hashing.HashedValue, feature Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[userID], feature)
}

func (m *MemoryStore) UserHasFeature(_ context.Context, userID hashing.HashedValue, feature Feature) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[userID][feature]
	return ok, nil
}
